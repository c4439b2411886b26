/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/gradehall/internal/auth"
	"github.com/friendsincode/gradehall/internal/calendar"
	"github.com/friendsincode/gradehall/internal/models"
)

// handleClassWeek composes the weekly grid for one class. Rapid repeated
// requests at different offsets race in the UI; the cursor is keyed per
// viewer and class so only that viewer's newest request wins, superseded
// ones get a 409 so stale grids never render.
func (a *API) handleClassWeek(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}
	offset := offsetParam(r)

	viewer := "anonymous"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		viewer = claims.UserID
	}

	view, err := a.cursors.For(viewer, classCode).Compose(r.Context(), classCode, year, offset, time.Now().UTC())
	if errors.Is(err, calendar.ErrStale) {
		writeError(w, http.StatusConflict, "superseded")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("class", classCode).Msg("compose week failed")
		writeError(w, http.StatusInternalServerError, "compose_error")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleTeacherWeek aggregates one teacher's assignments across all classes.
// Teacher accounts may only read their own week.
func (a *API) handleTeacherWeek(w http.ResponseWriter, r *http.Request) {
	teacherCode := chi.URLParam(r, "teacherCode")

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		if claims.HasRole(string(models.RoleTeacher)) && !claims.HasRole(string(models.RoleAdmin), string(models.RoleStaff)) {
			if claims.TeacherCode != teacherCode {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
	}

	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}
	offset := offsetParam(r)

	week, err := a.calendarSvc.TeacherWeek(r.Context(), teacherCode, year, offset, time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Str("teacher", teacherCode).Msg("teacher week failed")
		writeError(w, http.StatusInternalServerError, "compose_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"teacherCode": teacherCode,
		"offset":      offset,
		"days":        week,
	})
}

func (a *API) handleClassWeekICal(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}

	result, err := a.exportSvc.ExportWeekToICal(r.Context(), classCode, year, offsetParam(r), time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Str("class", classCode).Msg("ical export failed")
		writeError(w, http.StatusInternalServerError, "export_error")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	_, _ = w.Write(result.Data)
}

func (a *API) handleClassWeekHTML(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}

	data, err := a.exportSvc.ExportWeekToHTML(r.Context(), classCode, year, offsetParam(r), time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Str("class", classCode).Msg("html export failed")
		writeError(w, http.StatusInternalServerError, "export_error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// offsetParam reads the ?offset= week offset, defaulting to the current week.
func offsetParam(r *http.Request) int {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return offset
}
