/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateExamPlanTwoPerDay(t *testing.T) {
	// Mon 2025-03-03 through Tue 2025-03-04.
	sessions, err := GenerateExamPlan(date(2025, 3, 3), date(2025, 3, 4), ExamTwoPerDay, "242508001")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sessions) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(sessions))
	}
	want := []struct {
		day     int
		session string
	}{
		{3, "morning"}, {3, "afternoon"}, {4, "morning"}, {4, "afternoon"},
	}
	for i, w := range want {
		if sessions[i].Date.Day() != w.day || sessions[i].Session != w.session {
			t.Fatalf("session %d: expected day %d %s, got %v %s", i, w.day, w.session, sessions[i].Date, sessions[i].Session)
		}
		if sessions[i].SubjectCode != "" {
			t.Fatalf("session %d: subject must start empty", i)
		}
	}
}

func TestGenerateExamPlanSkipsWeekends(t *testing.T) {
	// Fri 2025-03-07 through Mon 2025-03-10 crosses a full weekend.
	sessions, err := GenerateExamPlan(date(2025, 3, 7), date(2025, 3, 10), ExamOnePerDay, "242508001")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if wd := s.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend session generated: %v", s.Date)
		}
		if s.Session != "full_day" {
			t.Fatalf("one per day plans must use full_day, got %s", s.Session)
		}
	}
}

func TestGenerateExamPlanRejectsBadInputs(t *testing.T) {
	if _, err := GenerateExamPlan(date(2025, 3, 4), date(2025, 3, 3), ExamOnePerDay, "c"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := GenerateExamPlan(date(2025, 3, 3), date(2025, 3, 4), ExamType("weekly"), "c"); !errors.Is(err, ErrUnknownExamType) {
		t.Fatalf("expected ErrUnknownExamType, got %v", err)
	}
}

func TestGenerateHolidayPlanIsInclusiveAndKeepsWeekends(t *testing.T) {
	entries, err := GenerateHolidayPlan(date(2025, 1, 1), date(2025, 1, 3), "Winter Break", HolidayFullDay, "242508001")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name != "Winter Break" || e.Duration != HolidayFullDay {
			t.Fatalf("unexpected entry: %+v", e)
		}
	}

	// Sat 2025-03-08 and Sun 2025-03-09 stay in the plan.
	weekend, err := GenerateHolidayPlan(date(2025, 3, 7), date(2025, 3, 10), "Festival", HolidayHalfDay, "242508001")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(weekend) != 4 {
		t.Fatalf("expected weekend dates to be kept, got %d entries", len(weekend))
	}
}

func TestGenerateHolidayPlanDefaultsEndToStart(t *testing.T) {
	entries, err := GenerateHolidayPlan(date(2025, 8, 15), time.Time{}, "Independence Day", HolidayFullDay, "242508001")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single entry, got %d", len(entries))
	}
}

func TestGenerateHolidayPlanRejectsReversedRange(t *testing.T) {
	if _, err := GenerateHolidayPlan(date(2025, 1, 3), date(2025, 1, 1), "x", HolidayFullDay, "c"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestDraftLifecycle(t *testing.T) {
	d := NewDraft(ExamTwoPerDay, "242508001")
	if d.State() != StateConfiguring {
		t.Fatalf("unexpected initial state %s", d.State())
	}

	if _, err := d.Submit(); err == nil {
		t.Fatal("expected submit before generation to fail")
	}

	if err := d.Generate(date(2025, 3, 3), date(2025, 3, 4)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if d.State() != StateSessionsDrafted {
		t.Fatalf("expected drafted state, got %s", d.State())
	}

	// Incomplete plans never leave the drafted state.
	if _, err := d.Submit(); !errors.Is(err, ErrIncompletePlan) {
		t.Fatalf("expected ErrIncompletePlan, got %v", err)
	}
	if d.State() != StateSessionsDrafted {
		t.Fatalf("failed submit must not advance state, got %s", d.State())
	}

	for i, code := range []string{"MATH", "SCI", "ENG", "HIST"} {
		if err := d.SetSubject(i, code); err != nil {
			t.Fatalf("set subject %d: %v", i, err)
		}
	}

	sessions, err := d.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(sessions) != 4 || d.State() != StateSubmitting {
		t.Fatalf("unexpected submit result: %d sessions, state %s", len(sessions), d.State())
	}

	if err := d.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if d.State() != StateDone {
		t.Fatalf("expected done state, got %s", d.State())
	}

	if err := d.Generate(date(2025, 3, 3), date(2025, 3, 4)); err == nil {
		t.Fatal("expected generate after completion to fail")
	}
}
