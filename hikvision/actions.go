/*
Package hikvision adapts Hikvision access-control terminals to the
attendance engine.

PURPOSE:
  Terminals post an event for every badge scan. The payload shape depends
  on firmware and on how the HTTP listener is configured on the device:
  a JSON body, a form field, a multipart body with the JSON in a named
  part (often next to a face snapshot), or an ISAPI XML alert. This
  package reduces all of them to one Event and maps the device's
  attendanceStatus token to the engine's two-state vocabulary.

SEE ALSO:
  - payload.go: body parsing
  - time.go: wall-clock extraction from device timestamps
*/
package hikvision

import (
	"strings"

	"github.com/warp/attendance-bridge/attendance"
)

// Vocabulary maps attendanceStatus tokens to actions. Lookup is
// case-insensitive. Tokens not in the map are unspecified.
type Vocabulary map[string]attendance.Action

// DefaultVocabulary covers the statuses terminals send in attendance mode.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"checkin":     attendance.ActionCheckIn,
		"breakin":     attendance.ActionCheckIn,
		"overtimein":  attendance.ActionCheckIn,
		"checkout":    attendance.ActionCheckOut,
		"breakout":    attendance.ActionCheckOut,
		"overtimeout": attendance.ActionCheckOut,
	}
}

// MapAction implements attendance.ActionMapper.
func (v Vocabulary) MapAction(token string) attendance.Action {
	return v[strings.ToLower(strings.TrimSpace(token))]
}
