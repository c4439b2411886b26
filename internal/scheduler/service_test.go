/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/scheduler/state"
	"github.com/friendsincode/gradehall/internal/slot"
)

func newTestService(t *testing.T, lookahead time.Duration) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(&models.Class{}, &models.ScheduleEntry{}, &models.CalendarDay{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	codec := slot.NewCodec("11:40", "12:20")
	svc := New(db, codec, state.NewStore(), lookahead, time.Minute, zerolog.Nop())
	return svc, db
}

func seedTemplateEntry(t *testing.T, db *gorm.DB, classCode string, dow int, label, start, end, teacher, subject string) {
	t.Helper()
	entry := models.ScheduleEntry{
		ID:           uuid.NewString(),
		ClassCode:    classCode,
		AcademicYear: "2024-2025",
		DayOfWeek:    dow,
		PeriodLabel:  label,
		StartTime:    start,
		EndTime:      end,
		TeacherCode:  teacher,
		SubjectCode:  subject,
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed template entry: %v", err)
	}
}

// expectedSchoolDays mirrors the materialization window: today through the
// horizon inclusive, Sundays excluded.
func expectedSchoolDays(lookahead time.Duration) []time.Time {
	today := dateOnly(time.Now().UTC())
	horizon := today.Add(lookahead)

	var dates []time.Time
	for d := today; !d.After(horizon); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func TestMaterializeClassCreatesMissingDays(t *testing.T) {
	svc, db := newTestService(t, 6*24*time.Hour)
	ctx := context.Background()

	for dow := 1; dow <= 6; dow++ {
		seedTemplateEntry(t, db, "242508001", dow, "P1", "09:00", "09:40", "rajeshmaths080910", "8_MATH")
		seedTemplateEntry(t, db, "242508001", dow, "P5", "12:20", "13:00", "meerasci080910", "8_SCI")
	}

	if err := svc.MaterializeClass(ctx, "242508001", "2024-2025"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	want := expectedSchoolDays(6 * 24 * time.Hour)
	var days []models.CalendarDay
	if err := db.Order("date asc").Find(&days).Error; err != nil {
		t.Fatalf("load days: %v", err)
	}
	if len(days) != len(want) {
		t.Fatalf("expected %d school days, got %d", len(want), len(days))
	}

	for i, day := range days {
		if !day.Date.Equal(want[i]) {
			t.Fatalf("day %d: expected date %s, got %s", i, want[i], day.Date)
		}
		if day.Date.Weekday() == time.Sunday {
			t.Fatalf("materialized a Sunday: %s", day.Date)
		}
		// Morning carries P1 plus the lunch token, afternoon carries P5.
		if len(day.MorningSlots) != 2 {
			t.Fatalf("day %s: unexpected morning slots %v", day.GridID, day.MorningSlots)
		}
		if !strings.Contains(day.MorningSlots[0], "8_MATH") {
			t.Fatalf("day %s: expected regular token first, got %v", day.GridID, day.MorningSlots)
		}
		if day.MorningSlots[1] != slot.BareLunch("242508001") {
			t.Fatalf("day %s: expected trailing lunch token, got %v", day.GridID, day.MorningSlots)
		}
		if len(day.AfternoonSlots) != 1 || !strings.Contains(day.AfternoonSlots[0], "8_SCI") {
			t.Fatalf("day %s: unexpected afternoon slots %v", day.GridID, day.AfternoonSlots)
		}
	}
}

func TestMaterializeClassNeverOverwritesExistingDays(t *testing.T) {
	svc, db := newTestService(t, 2*24*time.Hour)
	ctx := context.Background()

	seedTemplateEntry(t, db, "242508001", 1, "P1", "09:00", "09:40", "rajeshmaths080910", "8_MATH")

	today := dateOnly(time.Now().UTC())
	existing := models.CalendarDay{
		GridID:       models.GridIDFor("242508001", today),
		ClassCode:    "242508001",
		AcademicYear: "2024-2025",
		Date:         today,
		DayOfWeek:    isoDayOfWeek(today),
		DayType:      models.DayFullHoliday,
		HolidayName:  "Founders Day",
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed existing day: %v", err)
	}

	if err := svc.MaterializeClass(ctx, "242508001", "2024-2025"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	var day models.CalendarDay
	if err := db.Where("grid_id = ?", existing.GridID).First(&day).Error; err != nil {
		t.Fatalf("reload day: %v", err)
	}
	if day.DayType != models.DayFullHoliday || day.HolidayName != "Founders Day" {
		t.Fatalf("existing day was overwritten: %+v", day)
	}
}

func TestMaterializeClassIsIdempotent(t *testing.T) {
	svc, db := newTestService(t, 3*24*time.Hour)
	ctx := context.Background()

	seedTemplateEntry(t, db, "242508001", 1, "P1", "09:00", "09:40", "rajeshmaths080910", "8_MATH")

	if err := svc.MaterializeClass(ctx, "242508001", "2024-2025"); err != nil {
		t.Fatalf("first materialize: %v", err)
	}
	var first int64
	if err := db.Model(&models.CalendarDay{}).Count(&first).Error; err != nil {
		t.Fatalf("count: %v", err)
	}

	if err := svc.MaterializeClass(ctx, "242508001", "2024-2025"); err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	var second int64
	if err := db.Model(&models.CalendarDay{}).Count(&second).Error; err != nil {
		t.Fatalf("count: %v", err)
	}

	if first != second {
		t.Fatalf("second run changed row count: %d -> %d", first, second)
	}
}

func TestMaterializeClassAnnouncesWeekTouched(t *testing.T) {
	svc, db := newTestService(t, 2*24*time.Hour)
	bus := events.NewBus()
	svc.SetBus(bus)
	touched := bus.Subscribe(events.EventWeekTouched)

	seedTemplateEntry(t, db, "242508001", 1, "P1", "09:00", "09:40", "rajeshmaths080910", "8_MATH")
	seedTemplateEntry(t, db, "242508001", 2, "P1", "09:00", "09:40", "rajeshmaths080910", "8_MATH")

	if err := svc.MaterializeClass(context.Background(), "242508001", "2024-2025"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	select {
	case payload := <-touched:
		if payload["class_code"] != "242508001" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
	default:
		t.Fatal("creating days must announce the touched weeks")
	}

	// Re-running creates nothing, so nothing further is announced.
	if err := svc.MaterializeClass(context.Background(), "242508001", "2024-2025"); err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	select {
	case payload := <-touched:
		t.Fatalf("idempotent run must stay silent, got %+v", payload)
	default:
	}
}

func TestMaterializeClassWithoutTemplateCreatesNothing(t *testing.T) {
	svc, db := newTestService(t, 2*24*time.Hour)
	ctx := context.Background()

	if err := svc.MaterializeClass(ctx, "242508001", "2024-2025"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	var count int64
	if err := db.Model(&models.CalendarDay{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no days without a template, got %d", count)
	}
}

func TestExpandDaySortsAndSplitsAtLunch(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	entries := []models.ScheduleEntry{
		{ClassCode: "242508001", DayOfWeek: 2, PeriodLabel: "P5", StartTime: "12:20", EndTime: "13:00", TeacherCode: "meerasci080910", SubjectCode: "8_SCI"},
		{ClassCode: "242508001", DayOfWeek: 2, PeriodLabel: "P2", StartTime: "09:40", EndTime: "10:20", TeacherCode: "rajeshmaths080910", SubjectCode: "8_MATH"},
		{ClassCode: "242508001", DayOfWeek: 2, PeriodLabel: "P1", StartTime: "09:00", EndTime: "09:40", TeacherCode: "priyaeng080910", SubjectCode: "8_ENG"},
	}
	morning, afternoon := svc.expandDay("242508001", entries)

	if len(morning) != 3 {
		t.Fatalf("expected two regular tokens plus lunch, got %v", morning)
	}
	if !strings.Contains(morning[0], "_P1_") || !strings.Contains(morning[1], "_P2_") {
		t.Fatalf("morning tokens out of order: %v", morning)
	}
	if morning[2] != slot.BareLunch("242508001") {
		t.Fatalf("expected lunch token last, got %v", morning)
	}
	if len(afternoon) != 1 || !strings.Contains(afternoon[0], "_P5_") {
		t.Fatalf("unexpected afternoon tokens: %v", afternoon)
	}

	// Tokens round-trip through the codec.
	tok := svc.codec.Decode(morning[0])
	if tok.Kind != slot.KindRegular || tok.SubjectCode != "8_ENG" || tok.Start != "09:00" {
		t.Fatalf("decoded token mismatch: %+v", tok)
	}
}
