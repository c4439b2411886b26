/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package calendar owns the persisted per-class calendar days and the
// read/write operations around them: weekly grid composition, exam and
// holiday plan application, and upcoming listings.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/cache"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/planner"
	"github.com/friendsincode/gradehall/internal/slot"
	"github.com/friendsincode/gradehall/internal/telemetry"
	"github.com/friendsincode/gradehall/internal/timetable"
)

// Publisher is the slice of the event bus the service needs.
type Publisher interface {
	Publish(events.EventType, events.Payload)
}

// Service reads and mutates calendar days.
type Service struct {
	db       *gorm.DB
	codec    slot.Codec
	composer *timetable.Composer
	cache    *cache.Cache
	bus      Publisher
	logger   zerolog.Logger
}

// NewService wires the calendar service. Cache and bus may be nil in tests.
func NewService(db *gorm.DB, codec slot.Codec, composer *timetable.Composer, c *cache.Cache, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		codec:    codec,
		composer: composer,
		cache:    c,
		bus:      bus,
		logger:   logger.With().Str("component", "calendar").Logger(),
	}
}

// WeekView is the composed payload returned to the API layer.
type WeekView struct {
	ClassCode    string             `json:"classCode"`
	AcademicYear string             `json:"academicYear"`
	Offset       int                `json:"offset"`
	Label        string             `json:"label"`
	Days         []WeekViewDay      `json:"days"`
	Periods      []timetable.Period `json:"periods"`
	Cells        [][]timetable.Cell `json:"cells"`
}

// WeekViewDay labels one grid row.
type WeekViewDay struct {
	Date    string `json:"date"`
	DayName string `json:"dayName"`
}

// FetchWeek loads the calendar days of one class inside a window, date
// ascending. Missing days are simply absent; the composer tolerates gaps.
func (s *Service) FetchWeek(ctx context.Context, classCode, academicYear string, window timetable.WeekWindow) ([]models.CalendarDay, error) {
	var days []models.CalendarDay
	err := s.db.WithContext(ctx).
		Where("class_code = ? AND academic_year = ? AND date >= ? AND date <= ?",
			classCode, academicYear, window.Monday(), window.Saturday()).
		Order("date asc").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("fetch week: %w", err)
	}
	return days, nil
}

// ComposeWeek resolves the window for offset relative to ref, fetches the
// days and composes the grid. Composed payloads are cached per class, year
// and offset.
func (s *Service) ComposeWeek(ctx context.Context, classCode, academicYear string, offset int, ref time.Time) (*WeekView, error) {
	ctx, span := telemetry.StartSpan(ctx, "calendar", "ComposeWeek")
	defer span.End()

	if s.cache != nil {
		var cached WeekView
		if s.cache.GetWeekGrid(ctx, classCode, academicYear, offset, &cached) {
			telemetry.GridCompositionsTotal.WithLabelValues("cache").Inc()
			return &cached, nil
		}
	}

	window := timetable.ResolveWeek(ref, offset)
	days, err := s.FetchWeek(ctx, classCode, academicYear, window)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	grid := s.composer.Compose(window, days)
	view := &WeekView{
		ClassCode:    classCode,
		AcademicYear: academicYear,
		Offset:       offset,
		Label:        window.Label(),
		Periods:      grid.Periods,
		Cells:        grid.Cells[:],
	}
	for _, d := range window.Days {
		view.Days = append(view.Days, WeekViewDay{
			Date:    d.Format("2006-01-02"),
			DayName: d.Weekday().String(),
		})
	}

	telemetry.GridCompositionsTotal.WithLabelValues("store").Inc()
	if s.cache != nil {
		if err := s.cache.SetWeekGrid(ctx, classCode, academicYear, offset, view); err != nil {
			s.logger.Debug().Err(err).Msg("cache week grid")
		}
	}
	return view, nil
}

// ApplyExamPlan validates completeness, then overlays exam tokens onto the
// affected calendar days. Lunch tokens survive the overlay so the lunch
// column keeps rendering during exams. All writes run in one transaction.
func (s *Service) ApplyExamPlan(ctx context.Context, academicYear string, examType planner.ExamType, sessions []planner.ExamSession) error {
	if err := planner.ValidateExamPlan(sessions); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sess := range sessions {
			day, err := s.loadOrCreateDay(tx, sess.ClassCode, academicYear, sess.Date)
			if err != nil {
				return err
			}

			token := s.codec.Encode(slot.Token{
				Kind:        slot.KindExam,
				SubjectCode: sess.SubjectCode,
				Session:     sess.Session,
			})
			switch sess.Session {
			case slot.SessionMorning:
				day.MorningSlots = overlayExam(day.MorningSlots, token)
			case slot.SessionAfternoon:
				day.AfternoonSlots = overlayExam(day.AfternoonSlots, token)
			default: // full_day
				day.MorningSlots = overlayExam(day.MorningSlots, token)
				day.AfternoonSlots = overlayExam(day.AfternoonSlots, token)
			}
			day.ExamType = string(examType)

			if err := tx.Save(day).Error; err != nil {
				return fmt.Errorf("save exam day %s: %w", day.GridID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.PlansAppliedTotal.WithLabelValues("exam").Inc()
	s.afterCalendarWrite(ctx, classCodesOfSessions(sessions), events.EventExamPlanApplied)
	return nil
}

// ApplyHolidayPlan marks the planned dates as holidays. Existing slot tokens
// stay in place: a half holiday still renders its non-holiday half.
func (s *Service) ApplyHolidayPlan(ctx context.Context, academicYear string, entries []planner.HolidayEntry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			day, err := s.loadOrCreateDay(tx, e.ClassCode, academicYear, e.Date)
			if err != nil {
				return err
			}

			if e.Duration == planner.HolidayFullDay {
				day.DayType = models.DayFullHoliday
			} else {
				day.DayType = models.DayHalfHoliday
			}
			day.HolidayName = e.Name
			day.HolidayDuration = string(e.Duration)

			if err := tx.Save(day).Error; err != nil {
				return fmt.Errorf("save holiday day %s: %w", day.GridID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.PlansAppliedTotal.WithLabelValues("holiday").Inc()
	s.afterCalendarWrite(ctx, classCodesOfEntries(entries), events.EventHolidayApplied)
	return nil
}

// UpcomingExam is one row of the upcoming exams listing.
type UpcomingExam struct {
	Date      string `json:"date"`
	ClassCode string `json:"classCode"`
	ExamType  string `json:"examType"`
}

// UpcomingExams lists exam days from today onward, date ascending.
func (s *Service) UpcomingExams(ctx context.Context, from time.Time) ([]UpcomingExam, error) {
	if s.cache != nil {
		var cached []UpcomingExam
		if s.cache.GetUpcoming(ctx, "exams", &cached) {
			return cached, nil
		}
	}

	var days []models.CalendarDay
	err := s.db.WithContext(ctx).
		Where("exam_type <> '' AND date >= ?", dateOnly(from)).
		Order("date asc").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("upcoming exams: %w", err)
	}

	out := make([]UpcomingExam, 0, len(days))
	for _, d := range days {
		out = append(out, UpcomingExam{
			Date:      d.Date.Format("2006-01-02"),
			ClassCode: d.ClassCode,
			ExamType:  d.ExamType,
		})
	}
	if s.cache != nil {
		_ = s.cache.SetUpcoming(ctx, "exams", out)
	}
	return out, nil
}

// UpcomingHoliday is one row of the upcoming holidays listing.
type UpcomingHoliday struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

// UpcomingHolidays lists holiday days from today onward, deduplicated by
// date so a school-wide holiday shows once rather than per class.
func (s *Service) UpcomingHolidays(ctx context.Context, from time.Time) ([]UpcomingHoliday, error) {
	if s.cache != nil {
		var cached []UpcomingHoliday
		if s.cache.GetUpcoming(ctx, "holidays", &cached) {
			return cached, nil
		}
	}

	var days []models.CalendarDay
	err := s.db.WithContext(ctx).
		Where("day_type <> ? AND date >= ?", models.DayNormal, dateOnly(from)).
		Order("date asc").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("upcoming holidays: %w", err)
	}

	seen := make(map[string]bool)
	var out []UpcomingHoliday
	for _, d := range days {
		key := d.Date.Format("2006-01-02") + "|" + d.HolidayName
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, UpcomingHoliday{
			Date:     d.Date.Format("2006-01-02"),
			Name:     d.HolidayName,
			Duration: d.HolidayDuration,
		})
	}
	if s.cache != nil {
		_ = s.cache.SetUpcoming(ctx, "holidays", out)
	}
	return out, nil
}

// TeacherWeek aggregates one teacher's regular slots across every class for
// a window, keyed by day then period label.
func (s *Service) TeacherWeek(ctx context.Context, teacherCode, academicYear string, offset int, ref time.Time) (map[string]map[string]string, error) {
	window := timetable.ResolveWeek(ref, offset)

	var days []models.CalendarDay
	err := s.db.WithContext(ctx).
		Where("academic_year = ? AND date >= ? AND date <= ?",
			academicYear, window.Monday(), window.Saturday()).
		Order("date asc").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("teacher week: %w", err)
	}

	// date -> period label -> "class subject"
	out := make(map[string]map[string]string)
	for _, day := range days {
		if day.DayType == models.DayFullHoliday {
			continue
		}
		for _, list := range []models.SlotList{day.MorningSlots, day.AfternoonSlots} {
			for _, raw := range list {
				tok := s.codec.Decode(raw)
				if tok.Kind != slot.KindRegular || tok.TeacherCode != teacherCode {
					continue
				}
				date := day.Date.Format("2006-01-02")
				if out[date] == nil {
					out[date] = make(map[string]string)
				}
				out[date][tok.PeriodLabel] = fmt.Sprintf("%s %s", tok.ClassCode, tok.SubjectCode)
			}
		}
	}
	return out, nil
}

// loadOrCreateDay fetches a calendar day or initializes a blank one.
func (s *Service) loadOrCreateDay(tx *gorm.DB, classCode, academicYear string, date time.Time) (*models.CalendarDay, error) {
	date = dateOnly(date)
	gridID := models.GridIDFor(classCode, date)

	var day models.CalendarDay
	err := tx.Where("grid_id = ?", gridID).First(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		day = models.CalendarDay{
			GridID:       gridID,
			ClassCode:    classCode,
			AcademicYear: academicYear,
			Date:         date,
			DayOfWeek:    isoDayOfWeek(date),
			DayType:      models.DayNormal,
		}
		return &day, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load day %s: %w", gridID, err)
	}
	return &day, nil
}

// afterCalendarWrite invalidates caches and announces the change.
func (s *Service) afterCalendarWrite(ctx context.Context, classCodes []string, event events.EventType) {
	for _, code := range classCodes {
		if s.cache != nil {
			if err := s.cache.InvalidateClassWeeks(ctx, code); err != nil {
				s.logger.Debug().Err(err).Str("class", code).Msg("invalidate week cache")
			}
		}
		if s.bus != nil {
			s.bus.Publish(event, events.Payload{"class_code": code})
		}
	}
	if s.cache != nil {
		_ = s.cache.InvalidateUpcoming(ctx, "exams")
		_ = s.cache.InvalidateUpcoming(ctx, "holidays")
	}
}

// overlayExam drops everything except lunch tokens from a slot list and
// appends the exam token.
func overlayExam(slots models.SlotList, examToken string) models.SlotList {
	out := make(models.SlotList, 0, len(slots)+1)
	for _, raw := range slots {
		if strings.Contains(raw, "LUNCH") {
			out = append(out, raw)
		}
	}
	return append(out, examToken)
}

func classCodesOfSessions(sessions []planner.ExamSession) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sessions {
		if !seen[s.ClassCode] {
			seen[s.ClassCode] = true
			out = append(out, s.ClassCode)
		}
	}
	return out
}

func classCodesOfEntries(entries []planner.HolidayEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.ClassCode] {
			seen[e.ClassCode] = true
			out = append(out, e.ClassCode)
		}
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isoDayOfWeek maps Monday to 1 through Sunday to 7.
func isoDayOfWeek(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
