/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner expands administrator date range selections into exam
// session and holiday day plans ready to submit to the calendar store. Both
// generators are pure; validation failures surface before any expansion.
package planner

import (
	"errors"
	"time"
)

// ExamType selects how many sessions each exam day carries.
type ExamType string

const (
	ExamOnePerDay ExamType = "one_per_day"
	ExamTwoPerDay ExamType = "two_per_day"
)

// HolidayDuration selects how much of a day a holiday covers.
type HolidayDuration string

const (
	HolidayFullDay HolidayDuration = "full_day"
	HolidayHalfDay HolidayDuration = "half_day"
)

var (
	// ErrInvalidRange rejects a range whose end precedes its start.
	ErrInvalidRange = errors.New("planner: end date before start date")
	// ErrUnknownExamType rejects an unrecognized exam type.
	ErrUnknownExamType = errors.New("planner: unknown exam type")
	// ErrUnknownDuration rejects an unrecognized holiday duration.
	ErrUnknownDuration = errors.New("planner: unknown holiday duration")
	// ErrIncompletePlan rejects submission of a plan with empty subject codes.
	ErrIncompletePlan = errors.New("planner: all sessions need a subject code")
)

// ExamSession is one generated exam sitting. SubjectCode starts empty and is
// filled in by the author before submission.
type ExamSession struct {
	Date        time.Time `json:"date"`
	Session     string    `json:"session"` // morning, afternoon or full_day
	ClassCode   string    `json:"classCode"`
	SubjectCode string    `json:"subjectCode"`
}

// HolidayEntry is one generated holiday day.
type HolidayEntry struct {
	Date      time.Time       `json:"date"`
	Name      string          `json:"name"`
	Duration  HolidayDuration `json:"duration"`
	ClassCode string          `json:"classCode"`
}

// GenerateExamPlan expands an inclusive date range into exam sessions.
// Saturdays and Sundays are always skipped. Sessions come back in date order
// with empty subject codes; completeness is checked at submission, not here.
func GenerateExamPlan(start, end time.Time, examType ExamType, classCode string) ([]ExamSession, error) {
	if examType != ExamOnePerDay && examType != ExamTwoPerDay {
		return nil, ErrUnknownExamType
	}
	dates, err := expandRange(start, end)
	if err != nil {
		return nil, err
	}

	var sessions []ExamSession
	for _, d := range dates {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if examType == ExamOnePerDay {
			sessions = append(sessions, ExamSession{Date: d, Session: "full_day", ClassCode: classCode})
			continue
		}
		sessions = append(sessions,
			ExamSession{Date: d, Session: "morning", ClassCode: classCode},
			ExamSession{Date: d, Session: "afternoon", ClassCode: classCode},
		)
	}
	return sessions, nil
}

// ValidateExamPlan is the submission gate: every session must carry a
// subject code.
func ValidateExamPlan(sessions []ExamSession) error {
	for _, s := range sessions {
		if s.SubjectCode == "" {
			return ErrIncompletePlan
		}
	}
	return nil
}

// GenerateHolidayPlan expands an inclusive date range into holiday entries.
// A zero end date means a single day holiday. Unlike exams, weekends are
// kept: holidays may fall on any date.
func GenerateHolidayPlan(start, end time.Time, name string, duration HolidayDuration, classCode string) ([]HolidayEntry, error) {
	if duration != HolidayFullDay && duration != HolidayHalfDay {
		return nil, ErrUnknownDuration
	}
	if end.IsZero() {
		end = start
	}
	dates, err := expandRange(start, end)
	if err != nil {
		return nil, err
	}

	entries := make([]HolidayEntry, 0, len(dates))
	for _, d := range dates {
		entries = append(entries, HolidayEntry{Date: d, Name: name, Duration: duration, ClassCode: classCode})
	}
	return entries, nil
}

// expandRange lists the calendar dates from start to end inclusive as UTC
// midnight values.
func expandRange(start, end time.Time) ([]time.Time, error) {
	s := midnight(start)
	e := midnight(end)
	if e.Before(s) {
		return nil, ErrInvalidRange
	}

	var dates []time.Time
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
