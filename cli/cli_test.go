package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.db")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range [][]string{{"serve"}, {"reap"}, {"employee", "add"}, {"employee", "list"}} {
		sub, _, err := cmd.Find(name)
		require.NoError(t, err)
		assert.Equal(t, name[len(name)-1], sub.Name())
	}

	reap, _, _ := cmd.Find([]string{"reap"})
	require.NotNil(t, reap.Flags().Lookup("threshold"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestEmployeeAddAndList(t *testing.T) {
	sqliteEnv(t)

	// GIVEN: An empty sqlite directory
	// WHEN: Adding an employee
	out, err := execute(t, "employee", "add", "--registration", "045", "--name", "Luis")

	// THEN: It is saved and listed
	require.NoError(t, err)
	assert.Contains(t, out, "employee 1 saved")

	out, err = execute(t, "employee", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "045")
	assert.Contains(t, out, "Luis")
}

func TestEmployeeAdd_RequiresSQLite(t *testing.T) {
	_, err := execute(t, "employee", "add", "--registration", "45", "--name", "Luis")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEmployeeAdd_NeedsDigits(t *testing.T) {
	sqliteEnv(t)
	_, err := execute(t, "employee", "add", "--registration", "abc", "--name", "Luis")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReap(t *testing.T) {
	path := sqliteEnv(t)

	// GIVEN: A span opened three days ago
	store, err := sqlite.New(path)
	require.NoError(t, err)
	ctx := context.Background()
	emp, err := store.SaveEmployee(ctx, attendance.Employee{RegistrationNumber: "45", Name: "Luis"})
	require.NoError(t, err)
	id, err := store.CreateSpan(ctx, emp, time.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// WHEN: Reaping
	out, err := execute(t, "reap", "--threshold", "24")

	// THEN: The span is reported closed
	require.NoError(t, err)
	var summary ReapSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Found)
	assert.Equal(t, []int64{int64(id)}, summary.Closed)
	assert.Equal(t, 24, summary.ThresholdHours)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := execute(t, "reap")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewApp_Memory(t *testing.T) {
	opts := &RootOptions{}
	require.NoError(t, opts.load(NewRootCommand()))

	app, err := NewApp(opts.Config(), nil)
	require.NoError(t, err)
	defer app.Close()
	assert.Equal(t, "memory", app.Backend.Name)
	assert.NotNil(t, app.Handler(nil))
}
