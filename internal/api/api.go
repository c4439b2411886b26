/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/auth"
	"github.com/friendsincode/gradehall/internal/cache"
	"github.com/friendsincode/gradehall/internal/calendar"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/schedule"
	"github.com/friendsincode/gradehall/internal/scheduler"
)

// EventBus is the slice of the event bus the API publishes to. Both the
// in-process bus and the NATS fan-out satisfy it.
type EventBus interface {
	Publish(events.EventType, events.Payload)
}

// API exposes HTTP handlers.
type API struct {
	db           *gorm.DB
	jwtSecret    []byte
	calendarSvc  *calendar.Service
	cursors      *calendar.WeekCursors
	materializer *scheduler.Service
	exportSvc    *schedule.ExportService
	cache        *cache.Cache
	bus          EventBus
	logger       zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, calendarSvc *calendar.Service, materializer *scheduler.Service, exportSvc *schedule.ExportService, c *cache.Cache, bus EventBus, logger zerolog.Logger) *API {
	return &API{
		db:           db,
		jwtSecret:    jwtSecret,
		calendarSvc:  calendarSvc,
		cursors:      calendar.NewWeekCursors(calendarSvc),
		materializer: materializer,
		exportSvc:    exportSvc,
		cache:        c,
		bus:          bus,
		logger:       logger,
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/classes", func(r chi.Router) {
				r.Get("/", a.handleClassesList)
				r.With(a.requireRoles(models.RoleAdmin, models.RoleStaff)).Post("/", a.handleClassesCreate)
				r.Route("/{classCode}", func(r chi.Router) {
					r.Get("/", a.handleClassesGet)
					r.With(a.requireRoles(models.RoleAdmin, models.RoleStaff)).Put("/", a.handleClassesUpdate)
					r.With(a.requireRoles(models.RoleAdmin)).Delete("/", a.handleClassesDelete)
					r.Route("/schedule", func(sr chi.Router) {
						sr.Get("/", a.handleScheduleTemplateList)
						sr.With(a.requireRoles(models.RoleAdmin, models.RoleStaff)).Post("/", a.handleScheduleTemplateCreate)
						sr.With(a.requireRoles(models.RoleAdmin, models.RoleStaff)).Delete("/{entryID}", a.handleScheduleTemplateDelete)
					})
				})
			})

			pr.Route("/timetable", func(r chi.Router) {
				r.Get("/classes/{classCode}/week", a.handleClassWeek)
				r.Get("/classes/{classCode}/export.ics", a.handleClassWeekICal)
				r.Get("/classes/{classCode}/export.html", a.handleClassWeekHTML)
				r.Get("/teachers/{teacherCode}/week", a.handleTeacherWeek)
			})

			pr.Route("/plans", func(r chi.Router) {
				r.Get("/exams/upcoming", a.handleUpcomingExams)
				r.Get("/holidays/upcoming", a.handleUpcomingHolidays)

				r.Group(func(wr chi.Router) {
					wr.Use(a.requireRoles(models.RoleAdmin, models.RoleStaff))
					wr.Post("/exams/preview", a.handleExamPlanPreview)
					wr.Post("/exams", a.handleExamPlanApply)
					wr.Post("/holidays/preview", a.handleHolidayPlanPreview)
					wr.Post("/holidays", a.handleHolidayPlanApply)
					wr.Post("/holidays/import.ics", a.handleHolidayPlanImportICal)
				})
			})

			pr.Route("/apikeys", func(r chi.Router) {
				r.Get("/", a.handleAPIKeysList)
				r.Post("/", a.handleAPIKeysCreate)
				r.Delete("/{keyID}", a.handleAPIKeysRevoke)
			})

			pr.With(a.requireRoles(models.RoleAdmin)).Post("/scheduler/refresh", a.handleSchedulerRefresh)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "credentials_required")
		return
	}

	var user models.User
	result := a.db.WithContext(r.Context()).First(&user, "email = ?", req.Email)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("login lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if user.Suspended {
		writeError(w, http.StatusUnauthorized, "account_suspended")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	claims := auth.Claims{
		UserID: user.ID,
		Roles:  []string{string(user.Role)},
	}
	if user.Role == models.RoleTeacher {
		var teacher models.Teacher
		if err := a.db.WithContext(r.Context()).First(&teacher, "email = ?", user.Email).Error; err == nil {
			claims.TeacherCode = teacher.Code
		}
	}

	token, err := auth.Issue(a.jwtSecret, claims, 12*time.Hour)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"role":  string(user.Role),
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range claims.Roles {
				if _, exists := allowedSet[role]; exists {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient_role")
		})
	}
}

// academicYear resolves the ?year= query param, defaulting to the active
// academic year record.
func (a *API) academicYear(r *http.Request) (string, error) {
	if year := r.URL.Query().Get("year"); year != "" {
		return year, nil
	}
	var active models.AcademicYear
	err := a.db.WithContext(r.Context()).First(&active, "active = ?", true).Error
	if err != nil {
		return "", err
	}
	return active.Label, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// publishAuditEvent publishes an audit event with user and request context.
func (a *API) publishAuditEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	if a.bus == nil {
		return
	}
	payload := events.Payload{
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["user_id"] = claims.UserID
	}
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}
