// Package duration provides human-readable duration parsing. It extends
// Go's standard time.ParseDuration with support for days and weeks, which
// retention windows are naturally expressed in.
//
// Examples:
//   - "30d" = 30 days
//   - "2w" = 2 weeks
//   - "1w2d12h" = 1 week, 2 days, 12 hours
//   - "720h" = 720 hours (standard Go format)
package duration

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

// extendedUnitPattern matches number+unit groups for units Go's parser
// does not know (days, weeks).
var extendedUnitPattern = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(weeks|week|wk|w|days|day|d)`)

// Parse parses a duration string, accepting day and week units on top of
// everything time.ParseDuration supports.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	// Rewrite extended units into hours, then defer to the standard parser.
	rewritten := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		value, unit := parts[1], strings.ToLower(parts[2])
		hours := 24.0
		if strings.HasPrefix(unit, "w") {
			hours = 7 * 24
		}
		var n float64
		fmt.Sscanf(value, "%f", &n)
		return fmt.Sprintf("%gh", n*hours)
	})
	rewritten = strings.ReplaceAll(rewritten, " ", "")

	d, err := time.ParseDuration(rewritten)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Format renders a duration using the largest whole extended unit.
func Format(d time.Duration) string {
	switch {
	case d >= Week && d%Week == 0:
		return fmt.Sprintf("%dw", d/Week)
	case d >= Day && d%Day == 0:
		return fmt.Sprintf("%dd", d/Day)
	default:
		return d.String()
	}
}
