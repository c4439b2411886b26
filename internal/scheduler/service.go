/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/cache"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/scheduler/state"
	"github.com/friendsincode/gradehall/internal/slot"
	"github.com/friendsincode/gradehall/internal/telemetry"
)

// Publisher is the slice of the event bus the materializer publishes to.
type Publisher interface {
	Publish(events.EventType, events.Payload)
}

// Service is the calendar materializer. It rolls the weekly teaching template
// of every class forward into concrete CalendarDay rows inside the lookahead
// window, so grid reads never have to expand the template on the fly.
type Service struct {
	db         *gorm.DB
	codec      slot.Codec
	stateStore *state.Store
	cache      *cache.Cache
	bus        Publisher
	logger     zerolog.Logger
	lookahead  time.Duration
	interval   time.Duration
	warnMu     sync.Mutex
	warnedKeys map[string]struct{}
	mu         sync.Mutex
	lastPrune  time.Time
}

// New constructs the materializer service.
func New(db *gorm.DB, codec slot.Codec, stateStore *state.Store, lookahead, interval time.Duration, logger zerolog.Logger) *Service {
	if lookahead <= 0 {
		lookahead = 14 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		db:         db,
		codec:      codec,
		stateStore: stateStore,
		lookahead:  lookahead,
		interval:   interval,
		logger:     logger,
		warnedKeys: make(map[string]struct{}),
	}
}

// SetCache sets the cache instance for the materializer.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// SetBus sets the event bus the materializer announces calendar writes on.
func (s *Service) SetBus(bus Publisher) {
	s.bus = bus
}

// Run executes the materializer loop until the context is cancelled. One tick
// runs immediately so a fresh deployment has calendar days before the first
// interval elapses.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("materializer loop started")
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("materializer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	started := time.Now()
	outcome := "ok"

	classes, err := s.getClasses(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("materializer failed to load classes")
		telemetry.SchedulerTicksTotal.WithLabelValues("error").Inc()
		return
	}

	for _, cl := range classes {
		if err := s.MaterializeClass(ctx, cl.Code, cl.AcademicYear); err != nil {
			s.logger.Warn().Err(err).Str("class", cl.Code).Msg("class materialization failed")
			outcome = "partial"
		}
	}

	s.maybePruneState()
	telemetry.SchedulerTicksTotal.WithLabelValues(outcome).Inc()
	telemetry.SchedulerTickDuration.Observe(time.Since(started).Seconds())
}

// maybePruneState drops stale existence confirmations, at most once per hour.
func (s *Service) maybePruneState() {
	s.mu.Lock()
	if time.Since(s.lastPrune) < time.Hour {
		s.mu.Unlock()
		return
	}
	s.lastPrune = time.Now()
	s.mu.Unlock()

	if s.stateStore != nil {
		s.stateStore.Prune(time.Now().Add(-24 * time.Hour))
	}
}

// getClasses retrieves class codes and years, using cache when available.
func (s *Service) getClasses(ctx context.Context) ([]cache.CachedClass, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetClassList(ctx); ok {
			return cached, nil
		}
	}

	var classes []models.Class
	if err := s.db.WithContext(ctx).Find(&classes).Error; err != nil {
		return nil, err
	}

	cached := make([]cache.CachedClass, len(classes))
	for i, cl := range classes {
		cached[i] = cache.CachedClass{
			ID:           cl.ID,
			Code:         cl.Code,
			Name:         cl.Name,
			AcademicYear: cl.AcademicYear,
		}
	}
	if s.cache != nil {
		if err := s.cache.SetClassList(ctx, cached); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache class list")
		}
	}
	return cached, nil
}

// MaterializeClass creates the missing calendar days of one class from today
// through the lookahead horizon. Existing days are never touched, so applied
// exams and holidays survive every tick. Sundays carry no school days.
func (s *Service) MaterializeClass(ctx context.Context, classCode, academicYear string) error {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "MaterializeClass")
	defer span.End()

	template, err := s.loadTemplate(ctx, classCode, academicYear)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if len(template) == 0 {
		s.warnOnce("no_template:"+classCode, func(e *zerolog.Event) {
			e.Str("class", classCode).Msg("class has no schedule template, nothing to materialize")
		})
		return nil
	}

	today := dateOnly(time.Now().UTC())
	horizon := today.Add(s.lookahead)

	created := 0
	for d := today; !d.After(horizon); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		wasCreated, err := s.materializeDay(ctx, classCode, academicYear, d, template)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		if wasCreated {
			created++
		}
	}

	if created > 0 {
		telemetry.SchedulerDaysMaterialized.Add(float64(created))
		s.logger.Info().Str("class", classCode).Int("days", created).Msg("materialized calendar days")
		if s.cache != nil {
			if err := s.cache.InvalidateClassWeeks(ctx, classCode); err != nil {
				s.logger.Debug().Err(err).Str("class", classCode).Msg("invalidate week cache")
			}
		}
		// Tell other instances their cached week grids went stale.
		if s.bus != nil {
			s.bus.Publish(events.EventWeekTouched, events.Payload{"class_code": classCode})
		}
	}
	return nil
}

// materializeDay creates one CalendarDay if it does not exist yet. Returns
// whether a row was created.
func (s *Service) materializeDay(ctx context.Context, classCode, academicYear string, date time.Time, template map[int][]models.ScheduleEntry) (bool, error) {
	gridID := models.GridIDFor(classCode, date)
	if s.stateStore != nil && s.stateStore.Seen(gridID) {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CalendarDay{}).
		Where("grid_id = ?", gridID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		if s.stateStore != nil {
			s.stateStore.MarkSeen(gridID)
		}
		return false, nil
	}

	dow := isoDayOfWeek(date)
	morning, afternoon := s.expandDay(classCode, template[dow])

	day := models.CalendarDay{
		GridID:         gridID,
		ClassCode:      classCode,
		AcademicYear:   academicYear,
		Date:           date,
		DayOfWeek:      dow,
		DayType:        models.DayNormal,
		MorningSlots:   morning,
		AfternoonSlots: afternoon,
	}
	if err := s.db.WithContext(ctx).Create(&day).Error; err != nil {
		// Another instance may have won the race; the row existing is fine.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if s.stateStore != nil {
				s.stateStore.MarkSeen(gridID)
			}
			return false, nil
		}
		return false, err
	}
	if s.stateStore != nil {
		s.stateStore.MarkSeen(gridID)
	}
	return true, nil
}

// expandDay encodes one weekday's template entries into slot token lists,
// split at the lunch boundary. The bare lunch token sits at the end of the
// morning list, matching how the authoring side writes days.
func (s *Service) expandDay(classCode string, entries []models.ScheduleEntry) (models.SlotList, models.SlotList) {
	sorted := make([]models.ScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	var morning, afternoon models.SlotList
	for _, e := range sorted {
		token := s.codec.Encode(slot.Token{
			Kind:        slot.KindRegular,
			ClassCode:   e.ClassCode,
			DayOfWeek:   e.DayOfWeek,
			PeriodLabel: e.PeriodLabel,
			Start:       e.StartTime,
			End:         e.EndTime,
			TeacherCode: e.TeacherCode,
			SubjectCode: e.SubjectCode,
		})
		if e.StartTime < s.codec.LunchStart {
			morning = append(morning, token)
		} else {
			afternoon = append(afternoon, token)
		}
	}
	morning = append(morning, slot.BareLunch(classCode))
	return morning, afternoon
}

// loadTemplate loads a class's weekly template grouped by day of week.
func (s *Service) loadTemplate(ctx context.Context, classCode, academicYear string) (map[int][]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	err := s.db.WithContext(ctx).
		Where("class_code = ? AND academic_year = ?", classCode, academicYear).
		Order("day_of_week ASC, start_time ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[int][]models.ScheduleEntry)
	for _, e := range entries {
		byDay[e.DayOfWeek] = append(byDay[e.DayOfWeek], e)
	}
	return byDay, nil
}

func (s *Service) warnOnce(key string, logFn func(e *zerolog.Event)) {
	s.warnMu.Lock()
	if s.warnedKeys == nil {
		s.warnedKeys = make(map[string]struct{})
	}
	if _, ok := s.warnedKeys[key]; ok {
		s.warnMu.Unlock()
		return
	}
	s.warnedKeys[key] = struct{}{}
	s.warnMu.Unlock()

	logFn(s.logger.Warn())
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
