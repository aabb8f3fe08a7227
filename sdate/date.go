// Package sdate implements the classical two-digit-year SCCS date format
// and the six keyword date/time rendering forms.
package sdate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a wall-clock timestamp at one-second resolution, as stored in a
// history file delta record.
type Date struct {
	t time.Time
}

// Now returns the current time as a Date, in UTC, truncated to the second.
func Now() Date {
	return Date{t: time.Now().UTC().Truncate(time.Second)}
}

// FromTime wraps an existing time.Time.
func FromTime(t time.Time) Date {
	return Date{t: t.Truncate(time.Second)}
}

// windowYear applies the SCCS windowing rule: two-digit years >= 69 are
// 19yy, otherwise 20yy.
func windowYear(yy int) int {
	if yy >= 69 {
		return 1900 + yy
	}
	return 2000 + yy
}

// Parse parses the on-disk form "yy/mm/dd hh:mm:ss".
func Parse(text string) (Date, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Date{}, fmt.Errorf("sdate: malformed date %q", text)
	}
	dparts := strings.Split(fields[0], "/")
	tparts := strings.Split(fields[1], ":")
	if len(dparts) != 3 || len(tparts) != 3 {
		return Date{}, fmt.Errorf("sdate: malformed date %q", text)
	}
	nums := make([]int, 0, 6)
	for _, p := range append(append([]string{}, dparts...), tparts...) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("sdate: malformed date %q: %w", text, err)
		}
		nums = append(nums, n)
	}
	year := windowYear(nums[0])
	t := time.Date(year, time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC)
	return Date{t: t}, nil
}

// String renders the on-disk form "yy/mm/dd hh:mm:ss".
func (d Date) String() string {
	yy := d.t.Year() % 100
	return fmt.Sprintf("%02d/%02d/%02d %02d:%02d:%02d",
		yy, int(d.t.Month()), d.t.Day(), d.t.Hour(), d.t.Minute(), d.t.Second())
}

// Time returns the underlying time.Time.
func (d Date) Time() time.Time { return d.t }

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Keyword renders one of the classical per-letter date/time keyword forms.
// Letters: D (yy/mm/dd), H (month name form unused, kept as mm/dd/yy),
// T (hh:mm:ss). See spec.md §6.4 / §4.3 for the %D%/%H%/%T% family used by
// both "current date" (%D%%H%%T%) and "gotten delta date" (%E%%G%%U%).
func (d Date) Keyword(letter byte) string {
	switch letter {
	case 'D':
		return fmt.Sprintf("%02d/%02d/%02d", d.t.Year()%100, int(d.t.Month()), d.t.Day())
	case 'H':
		return fmt.Sprintf("%02d/%02d/%02d", int(d.t.Month()), d.t.Day(), d.t.Year()%100)
	case 'T':
		return fmt.Sprintf("%02d:%02d:%02d", d.t.Hour(), d.t.Minute(), d.t.Second())
	case 'E':
		return fmt.Sprintf("%02d/%02d/%02d", d.t.Year()%100, int(d.t.Month()), d.t.Day())
	case 'G':
		return fmt.Sprintf("%02d/%02d/%02d", int(d.t.Month()), d.t.Day(), d.t.Year()%100)
	case 'U':
		return fmt.Sprintf("%02d:%02d:%02d", d.t.Hour(), d.t.Minute(), d.t.Second())
	default:
		return ""
	}
}
