/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/planner"
)

type examPlanRequest struct {
	AcademicYear string   `json:"academicYear"`
	ExamType     string   `json:"examType"`
	ClassCode    string   `json:"classCode"`
	StartDate    string   `json:"startDate"` // YYYY-MM-DD
	EndDate      string   `json:"endDate"`
	Subjects     []string `json:"subjects,omitempty"` // one per generated session, in order
}

// handleExamPlanPreview expands a date range into exam sessions with empty
// subject codes, ready for the author to fill in.
func (a *API) handleExamPlanPreview(w http.ResponseWriter, r *http.Request) {
	var req examPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	start, end, ok := parseDateRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	draft := planner.NewDraft(planner.ExamType(req.ExamType), req.ClassCode)
	if err := draft.Generate(start, end); err != nil {
		writePlannerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":    draft.State(),
		"sessions": draft.Sessions(),
	})
}

// handleExamPlanApply runs the full authoring flow server side: regenerate
// the sessions, assign the submitted subjects, gate on completeness and
// persist. Incomplete plans never reach the calendar.
func (a *API) handleExamPlanApply(w http.ResponseWriter, r *http.Request) {
	var req examPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	year := req.AcademicYear
	if year == "" {
		var err error
		if year, err = a.academicYear(r); err != nil {
			writeError(w, http.StatusBadRequest, "academic_year_required")
			return
		}
	}

	start, end, ok := parseDateRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	draft := planner.NewDraft(planner.ExamType(req.ExamType), req.ClassCode)
	if err := draft.Generate(start, end); err != nil {
		writePlannerError(w, err)
		return
	}
	if len(req.Subjects) != len(draft.Sessions()) {
		writeError(w, http.StatusBadRequest, "subject_count_mismatch")
		return
	}
	for i, subject := range req.Subjects {
		if err := draft.SetSubject(i, subject); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_assignment")
			return
		}
	}

	sessions, err := draft.Submit()
	if err != nil {
		writePlannerError(w, err)
		return
	}

	if err := a.calendarSvc.ApplyExamPlan(r.Context(), year, planner.ExamType(req.ExamType), sessions); err != nil {
		a.logger.Error().Err(err).Str("class", req.ClassCode).Msg("apply exam plan failed")
		writeError(w, http.StatusInternalServerError, "apply_error")
		return
	}
	_ = draft.Complete()

	a.publishAuditEvent(r, events.EventAuditPlanSubmit, events.Payload{
		"kind":       "exam",
		"class_code": req.ClassCode,
		"sessions":   len(sessions),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"state":    draft.State(),
		"applied":  len(sessions),
		"sessions": sessions,
	})
}

type holidayPlanRequest struct {
	AcademicYear string   `json:"academicYear"`
	Name         string   `json:"name"`
	Duration     string   `json:"duration"`
	ClassCodes   []string `json:"classCodes"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate"` // empty means single day
}

func (a *API) buildHolidayEntries(req holidayPlanRequest) ([]planner.HolidayEntry, error) {
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, err
	}
	var end time.Time
	if req.EndDate != "" {
		if end, err = time.Parse("2006-01-02", req.EndDate); err != nil {
			return nil, err
		}
	}

	var entries []planner.HolidayEntry
	for _, code := range req.ClassCodes {
		expanded, err := planner.GenerateHolidayPlan(start, end, req.Name, planner.HolidayDuration(req.Duration), code)
		if err != nil {
			return nil, err
		}
		entries = append(entries, expanded...)
	}
	return entries, nil
}

func (a *API) handleHolidayPlanPreview(w http.ResponseWriter, r *http.Request) {
	var req holidayPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || len(req.ClassCodes) == 0 {
		writeError(w, http.StatusBadRequest, "name_and_classes_required")
		return
	}

	entries, err := a.buildHolidayEntries(req)
	if err != nil {
		writePlannerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleHolidayPlanApply(w http.ResponseWriter, r *http.Request) {
	var req holidayPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || len(req.ClassCodes) == 0 {
		writeError(w, http.StatusBadRequest, "name_and_classes_required")
		return
	}
	year := req.AcademicYear
	if year == "" {
		var err error
		if year, err = a.academicYear(r); err != nil {
			writeError(w, http.StatusBadRequest, "academic_year_required")
			return
		}
	}

	entries, err := a.buildHolidayEntries(req)
	if err != nil {
		writePlannerError(w, err)
		return
	}

	if err := a.calendarSvc.ApplyHolidayPlan(r.Context(), year, entries); err != nil {
		a.logger.Error().Err(err).Str("holiday", req.Name).Msg("apply holiday plan failed")
		writeError(w, http.StatusInternalServerError, "apply_error")
		return
	}

	a.publishAuditEvent(r, events.EventAuditPlanSubmit, events.Payload{
		"kind":    "holiday",
		"name":    req.Name,
		"entries": len(entries),
	})

	writeJSON(w, http.StatusOK, map[string]any{"applied": len(entries)})
}

// handleHolidayPlanImportICal ingests an iCal feed of school holidays and
// applies it as full day holidays. The ?classes= query limits the import to
// a comma separated list; by default every class is affected.
func (a *API) handleHolidayPlanImportICal(w http.ResponseWriter, r *http.Request) {
	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}

	classCodes := splitParam(r.URL.Query().Get("classes"))
	if len(classCodes) == 0 {
		var classes []models.Class
		if err := a.db.WithContext(r.Context()).Where("academic_year = ?", year).Find(&classes).Error; err != nil {
			a.logger.Error().Err(err).Msg("list classes for import failed")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		for _, cl := range classes {
			classCodes = append(classCodes, cl.Code)
		}
	}
	if len(classCodes) == 0 {
		writeError(w, http.StatusBadRequest, "no_classes")
		return
	}

	result, err := a.exportSvc.ParseHolidaysFromICal(r.Body, classCodes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ical")
		return
	}
	if len(result.Entries) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"applied": 0, "skipped": result.Skipped})
		return
	}

	if err := a.calendarSvc.ApplyHolidayPlan(r.Context(), year, result.Entries); err != nil {
		a.logger.Error().Err(err).Msg("apply imported holidays failed")
		writeError(w, http.StatusInternalServerError, "apply_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applied": len(result.Entries),
		"skipped": result.Skipped,
		"errors":  result.Errors,
	})
}

func (a *API) handleUpcomingExams(w http.ResponseWriter, r *http.Request) {
	exams, err := a.calendarSvc.UpcomingExams(r.Context(), time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Msg("upcoming exams failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (a *API) handleUpcomingHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := a.calendarSvc.UpcomingHolidays(r.Context(), time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Msg("upcoming holidays failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, holidays)
}

// handleSchedulerRefresh triggers immediate materialization for one class.
func (a *API) handleSchedulerRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassCode    string `json:"classCode"`
		AcademicYear string `json:"academicYear"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.ClassCode == "" {
		writeError(w, http.StatusBadRequest, "class_code_required")
		return
	}
	year := req.AcademicYear
	if year == "" {
		var err error
		if year, err = a.academicYear(r); err != nil {
			writeError(w, http.StatusBadRequest, "academic_year_required")
			return
		}
	}

	if err := a.materializer.MaterializeClass(r.Context(), req.ClassCode, year); err != nil {
		a.logger.Error().Err(err).Str("class", req.ClassCode).Msg("refresh failed")
		writeError(w, http.StatusInternalServerError, "materialize_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventCalendarUpdated, events.Payload{"class_code": req.ClassCode})
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDateRange(w http.ResponseWriter, startStr, endStr string) (time.Time, time.Time, bool) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func writePlannerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range")
	case errors.Is(err, planner.ErrUnknownExamType):
		writeError(w, http.StatusBadRequest, "unknown_exam_type")
	case errors.Is(err, planner.ErrUnknownDuration):
		writeError(w, http.StatusBadRequest, "unknown_duration")
	case errors.Is(err, planner.ErrNoSessions):
		writeError(w, http.StatusBadRequest, "empty_plan")
	case errors.Is(err, planner.ErrIncompletePlan):
		writeError(w, http.StatusUnprocessableEntity, "incomplete_plan")
	default:
		writeError(w, http.StatusBadRequest, "invalid_plan")
	}
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
