package domain

import (
	"fmt"
	"time"
)

// WeekStart returns Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	offset := (int(lt.Weekday()) + 6) % 7 // days since Monday
	y, m, d := lt.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// WeekID is the ISO year-week of t in loc, e.g. "2026-W42".
func WeekID(t time.Time, loc *time.Location) string {
	y, w := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// DayKey is the calendar date of t in loc, e.g. "2026-10-15".
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
