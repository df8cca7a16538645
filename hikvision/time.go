package hikvision

import (
	"regexp"
	"strings"
)

var isoWallClock = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2}:\d{2})`)

// WallClock reduces a device timestamp to "YYYY-MM-DD HH:mm:ss".
//
// The device offset is ignored; the configured zone decides the instant.
// Inputs that do not look like a timestamp are returned trimmed and fail
// later in the normalizer.
func WallClock(deviceTime string) string {
	if m := isoWallClock.FindStringSubmatch(deviceTime); m != nil {
		return m[1] + " " + m[2]
	}
	return strings.TrimSpace(deviceTime)
}
