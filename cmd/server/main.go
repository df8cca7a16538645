/*
main.go - Application entry point

PURPOSE:
  Runs the attendance-bridge command tree. With no subcommand the binary
  prints usage; production runs `attendance-bridge serve`.

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, YAML, environment)
  2. Build the configured backend (odoo, sqlite or memory) and journal
  3. Wire the engine: normalizer, directory, gateway, reconciler, reaper
  4. Start the HTTP server and the reaper scheduler
  5. Graceful shutdown on SIGINT/SIGTERM

ENVIRONMENT:
  PORT, ALLOWED_ORIGINS, STORE_BACKEND, ODOO_URL, ODOO_PORT, ODOO_DB,
  ODOO_USERNAME, ODOO_PASSWORD, ODOO_REJECT_UNAUTHORIZED, SQLITE_PATH,
  JOURNAL_PATH, REAPER_ENABLED, REAPER_INTERVAL, REAPER_THRESHOLD_HOURS,
  LOG_LEVEL, LOG_FORMAT

SEE ALSO:
  - cli/root.go: Command tree
  - cli/serve.go: Server startup
*/
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/warp/attendance-bridge/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
