/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timetable resolves week windows and composes the weekly grid shown
// to students and teachers from raw calendar day records.
package timetable

import (
	"fmt"
	"time"
)

// BusinessDays is the number of teaching days in a week window, Monday
// through Saturday.
const BusinessDays = 6

// WeekWindow addresses one displayable week by offset from the reference
// week. Days holds the six business dates as UTC midnight values.
type WeekWindow struct {
	Offset int
	Days   [BusinessDays]time.Time
}

// ResolveWeek computes the window for the ISO week containing ref shifted by
// offset weeks. Arithmetic happens on the calendar date only, so the result
// is stable across time zones and DST transitions.
func ResolveWeek(ref time.Time, offset int) WeekWindow {
	y, m, d := ref.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	// Monday of the ISO week containing ref.
	back := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -back+offset*7)

	w := WeekWindow{Offset: offset}
	for i := 0; i < BusinessDays; i++ {
		w.Days[i] = monday.AddDate(0, 0, i)
	}
	return w
}

// Monday returns the first date of the window.
func (w WeekWindow) Monday() time.Time { return w.Days[0] }

// Saturday returns the last business date of the window.
func (w WeekWindow) Saturday() time.Time { return w.Days[BusinessDays-1] }

// Contains reports whether date (compared by calendar day) falls inside the
// window, Sunday excluded.
func (w WeekWindow) Contains(date time.Time) bool {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !day.Before(w.Days[0]) && !day.After(w.Days[BusinessDays-1])
}

// Label renders the human week description used by the calendar views.
func (w WeekWindow) Label() string {
	switch {
	case w.Offset == 0:
		return "Current Week"
	case w.Offset == 1:
		return "Next Week"
	case w.Offset == -1:
		return "Last Week"
	case w.Offset > 1:
		return fmt.Sprintf("%d Weeks Ahead", w.Offset)
	default:
		return fmt.Sprintf("%d Weeks Ago", -w.Offset)
	}
}
