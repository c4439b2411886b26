/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/cache"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
)

func (a *API) handleClassesList(w http.ResponseWriter, r *http.Request) {
	var classes []models.Class
	if err := a.db.WithContext(r.Context()).Order("code asc").Find(&classes).Error; err != nil {
		a.logger.Error().Err(err).Msg("list classes failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	// Warm the class list cache consumed by the materializer.
	if a.cache != nil {
		cached := make([]cache.CachedClass, 0, len(classes))
		for _, cl := range classes {
			cached = append(cached, cache.CachedClass{
				ID:           cl.ID,
				Code:         cl.Code,
				Name:         cl.Name,
				AcademicYear: cl.AcademicYear,
			})
		}
		if err := a.cache.SetClassList(r.Context(), cached); err != nil {
			a.logger.Debug().Err(err).Msg("failed to cache class list")
		}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (a *API) handleClassesCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code         string `json:"code"`
		Name         string `json:"name"`
		AcademicYear string `json:"academicYear"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "code_and_name_required")
		return
	}
	if req.AcademicYear == "" {
		year, err := a.academicYear(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "academic_year_required")
			return
		}
		req.AcademicYear = year
	}

	class := models.Class{
		ID:           uuid.NewString(),
		Code:         req.Code,
		Name:         req.Name,
		AcademicYear: req.AcademicYear,
	}
	if err := a.db.WithContext(r.Context()).Create(&class).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(w, http.StatusConflict, "class_code_exists")
			return
		}
		a.logger.Error().Err(err).Msg("create class failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.cache != nil {
		_ = a.cache.InvalidateClassList(r.Context())
	}
	if a.bus != nil {
		a.bus.Publish(events.EventClassCreated, events.Payload{"class_code": class.Code})
	}
	a.logger.Info().Str("class", class.Code).Msg("class created")
	writeJSON(w, http.StatusCreated, class)
}

func (a *API) handleClassesGet(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")

	var class models.Class
	result := a.db.WithContext(r.Context()).First(&class, "code = ?", classCode)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("get class failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, class)
}

func (a *API) handleClassesUpdate(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	var class models.Class
	result := a.db.WithContext(r.Context()).First(&class, "code = ?", classCode)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("load class failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	class.Name = req.Name
	if err := a.db.WithContext(r.Context()).Save(&class).Error; err != nil {
		a.logger.Error().Err(err).Msg("update class failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.cache != nil {
		_ = a.cache.InvalidateClassList(r.Context())
	}
	if a.bus != nil {
		a.bus.Publish(events.EventClassUpdated, events.Payload{"class_code": class.Code})
	}
	a.logger.Info().Str("class", class.Code).Msg("class updated")
	writeJSON(w, http.StatusOK, class)
}

// handleClassesDelete removes a class along with its weekly template and
// materialized calendar days.
func (a *API) handleClassesDelete(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("code = ?", classCode).Delete(&models.Class{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("class_code = ?", classCode).Delete(&models.ScheduleEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("class_code = ?", classCode).Delete(&models.CalendarDay{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete class failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.cache != nil {
		_ = a.cache.InvalidateClassList(r.Context())
		_ = a.cache.InvalidateClassWeeks(r.Context(), classCode)
	}
	if a.bus != nil {
		a.bus.Publish(events.EventClassDeleted, events.Payload{"class_code": classCode})
	}
	a.logger.Info().Str("class", classCode).Msg("class deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleScheduleTemplateList(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	year, err := a.academicYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "academic_year_required")
		return
	}

	var entries []models.ScheduleEntry
	err = a.db.WithContext(r.Context()).
		Where("class_code = ? AND academic_year = ?", classCode, year).
		Order("day_of_week ASC, start_time ASC").
		Find(&entries).Error
	if err != nil {
		a.logger.Error().Err(err).Msg("list schedule template failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

type scheduleEntryRequest struct {
	AcademicYear string `json:"academicYear"`
	DayOfWeek    int    `json:"dayOfWeek"`
	PeriodLabel  string `json:"periodLabel"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	TeacherCode  string `json:"teacherCode"`
	SubjectCode  string `json:"subjectCode"`
}

func (a *API) handleScheduleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")

	var req scheduleEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DayOfWeek < 1 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	if req.PeriodLabel == "" || req.StartTime == "" || req.EndTime == "" ||
		req.TeacherCode == "" || req.SubjectCode == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.EndTime <= req.StartTime {
		writeError(w, http.StatusBadRequest, "invalid_time_window")
		return
	}
	if req.AcademicYear == "" {
		year, err := a.academicYear(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "academic_year_required")
			return
		}
		req.AcademicYear = year
	}

	// A teacher cannot be in two classrooms at once: reject overlapping
	// assignments on the same weekday across all classes.
	var conflicts int64
	err := a.db.WithContext(r.Context()).
		Model(&models.ScheduleEntry{}).
		Where("academic_year = ? AND teacher_code = ? AND day_of_week = ?",
			req.AcademicYear, req.TeacherCode, req.DayOfWeek).
		Where("start_time < ? AND end_time > ?", req.EndTime, req.StartTime).
		Count(&conflicts).Error
	if err != nil {
		a.logger.Error().Err(err).Msg("teacher conflict check failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if conflicts > 0 {
		writeError(w, http.StatusConflict, "teacher_conflict")
		return
	}

	entry := models.ScheduleEntry{
		ID:           uuid.NewString(),
		ClassCode:    classCode,
		AcademicYear: req.AcademicYear,
		DayOfWeek:    req.DayOfWeek,
		PeriodLabel:  req.PeriodLabel,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		TeacherCode:  req.TeacherCode,
		SubjectCode:  req.SubjectCode,
	}
	if err := a.db.WithContext(r.Context()).Create(&entry).Error; err != nil {
		a.logger.Error().Err(err).Msg("create schedule entry failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventScheduleUpdate, events.Payload{"class_code": classCode})
	}
	a.publishAuditEvent(r, events.EventAuditScheduleCreate, events.Payload{
		"class_code": classCode,
		"entry_id":   entry.ID,
		"teacher":    entry.TeacherCode,
		"subject":    entry.SubjectCode,
	})

	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleScheduleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	entryID := chi.URLParam(r, "entryID")

	result := a.db.WithContext(r.Context()).
		Where("id = ? AND class_code = ?", entryID, classCode).
		Delete(&models.ScheduleEntry{})
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("delete schedule entry failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventScheduleUpdate, events.Payload{"class_code": classCode})
	}
	a.publishAuditEvent(r, events.EventAuditScheduleDelete, events.Payload{
		"class_code": classCode,
		"entry_id":   entryID,
	})

	w.WriteHeader(http.StatusNoContent)
}
