package attendance

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// STORAGE TIME CONVENTION
// =============================================================================

// StorageLayout is the HR store's textual convention: UTC, no offset suffix.
// Terminal wall clocks use the same layout in the configured local zone.
const StorageLayout = "2006-01-02 15:04:05"

// FormatStorage renders t in the storage convention.
func FormatStorage(t time.Time) string { return t.UTC().Format(StorageLayout) }

// ParseStorage parses a storage-convention string as UTC.
func ParseStorage(s string) (time.Time, error) {
	t, err := time.ParseInLocation(StorageLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, &InvalidTimeFormatError{Input: s, Layout: StorageLayout}
	}
	return t, nil
}

// =============================================================================
// TIME NORMALIZER
// =============================================================================

// Normalizer converts terminal-local wall clocks to storage UTC and back.
// The zone is fixed by configuration, never derived from the event.
// Offsets come from the zone's rules for the given date, so DST applies.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer loads the named IANA zone.
func NewNormalizer(zone string) (*Normalizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Normalizer{loc: loc}, nil
}

// NewNormalizerIn wraps an already loaded location.
func NewNormalizerIn(loc *time.Location) *Normalizer { return &Normalizer{loc: loc} }

func (n *Normalizer) Location() *time.Location { return n.loc }

// Parse reads a local wall clock and returns the instant in UTC.
// Wall clocks that fall in a spring-forward gap are moved forward by the
// gap, as time.Date does.
func (n *Normalizer) Parse(local string) (time.Time, error) {
	t, err := time.ParseInLocation(StorageLayout, strings.TrimSpace(local), n.loc)
	if err != nil {
		return time.Time{}, &InvalidTimeFormatError{Input: local, Layout: StorageLayout}
	}
	return t.UTC(), nil
}

// Normalize converts a local wall clock to the storage convention.
func (n *Normalizer) Normalize(local string) (string, error) {
	t, err := n.Parse(local)
	if err != nil {
		return "", err
	}
	return FormatStorage(t), nil
}

// Localize converts a storage-convention string back to the local wall clock.
func (n *Normalizer) Localize(stored string) (string, error) {
	t, err := ParseStorage(stored)
	if err != nil {
		return "", err
	}
	return t.In(n.loc).Format(StorageLayout), nil
}

// EndOfLocalDay returns 23:59:59 of t's calendar day in the local zone, as UTC.
func (n *Normalizer) EndOfLocalDay(t time.Time) time.Time {
	l := t.In(n.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, 0, n.loc).UTC()
}
