/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/auth"
	"github.com/friendsincode/gradehall/internal/calendar"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/schedule"
	"github.com/friendsincode/gradehall/internal/scheduler"
	"github.com/friendsincode/gradehall/internal/scheduler/state"
	"github.com/friendsincode/gradehall/internal/slot"
	"github.com/friendsincode/gradehall/internal/timetable"
)

var testSecret = []byte("test-secret")

func newTestRouter(t *testing.T) (chi.Router, *gorm.DB) {
	t.Helper()
	return newTestRouterWithBus(t, nil)
}

func newTestRouterWithBus(t *testing.T, bus EventBus) (chi.Router, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.APIKey{}, &models.AcademicYear{},
		&models.Class{}, &models.Teacher{},
		&models.ScheduleEntry{}, &models.CalendarDay{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	year := models.AcademicYear{
		ID:     uuid.NewString(),
		Label:  "2024-2025",
		Active: true,
	}
	if err := db.Create(&year).Error; err != nil {
		t.Fatalf("seed academic year: %v", err)
	}

	codec := slot.NewCodec("11:40", "12:20")
	composer := timetable.NewComposer(timetable.DefaultPeriods(), codec)
	calendarSvc := calendar.NewService(db, codec, composer, nil, nil, zerolog.Nop())
	materializer := scheduler.New(db, codec, state.NewStore(), 24*time.Hour, time.Minute, zerolog.Nop())
	exportSvc := schedule.NewExportService(db, calendarSvc, codec, zerolog.Nop())

	a := New(db, testSecret, calendarSvc, materializer, exportSvc, nil, bus, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return r, db
}

func tokenFor(t *testing.T, role models.RoleName) string {
	t.Helper()
	token, err := auth.Issue(testSecret, auth.Claims{
		UserID: uuid.NewString(),
		Roles:  []string{string(role)},
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, r chi.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func seedClass(t *testing.T, db *gorm.DB, code, name string) {
	t.Helper()
	class := models.Class{ID: uuid.NewString(), Code: code, Name: name, AcademicYear: "2024-2025"}
	if err := db.Create(&class).Error; err != nil {
		t.Fatalf("seed class: %v", err)
	}
}

func TestLogin(t *testing.T) {
	r, db := newTestRouter(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		ID:       uuid.NewString(),
		Email:    "head@school.local",
		Password: string(hash),
		Role:     models.RoleAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "head@school.local", "password": "sekrit",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["token"] == "" || resp["role"] != "admin" {
		t.Fatalf("unexpected login response: %v", resp)
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "head@school.local", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rr.Code)
	}
}

func TestClassCreateDuplicateCodeConflict(t *testing.T) {
	r, _ := newTestRouter(t)
	token := tokenFor(t, models.RoleAdmin)

	body := map[string]string{"code": "242508001", "name": "Grade 8 Section A", "academicYear": "2024-2025"}
	if rr := doJSON(t, r, http.MethodPost, "/api/v1/classes", token, body); rr.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/classes", token, body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate code: expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "class_code_exists") {
		t.Fatalf("unexpected conflict body: %s", rr.Body.String())
	}
}

func TestClassUpdateAndDeletePublishEvents(t *testing.T) {
	bus := events.NewBus()
	r, db := newTestRouterWithBus(t, bus)
	updated := bus.Subscribe(events.EventClassUpdated)
	deleted := bus.Subscribe(events.EventClassDeleted)

	seedClass(t, db, "242508001", "Grade 8 Section A")
	entry := models.ScheduleEntry{
		ID: uuid.NewString(), ClassCode: "242508001", AcademicYear: "2024-2025",
		DayOfWeek: 1, PeriodLabel: "P1", StartTime: "09:00", EndTime: "09:40",
		TeacherCode: "rajeshmaths080910", SubjectCode: "8_MATH",
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("seed schedule entry: %v", err)
	}

	admin := tokenFor(t, models.RoleAdmin)
	rr := doJSON(t, r, http.MethodPut, "/api/v1/classes/242508001", admin, map[string]string{"name": "Grade 8 Blue"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	select {
	case payload := <-updated:
		if payload["class_code"] != "242508001" {
			t.Fatalf("unexpected update payload: %+v", payload)
		}
	default:
		t.Fatal("class update must publish an event")
	}

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/classes/242508001", admin, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	select {
	case payload := <-deleted:
		if payload["class_code"] != "242508001" {
			t.Fatalf("unexpected delete payload: %+v", payload)
		}
	default:
		t.Fatal("class delete must publish an event")
	}

	if rr = doJSON(t, r, http.MethodGet, "/api/v1/classes/242508001", admin, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted class: expected 404, got %d", rr.Code)
	}
	var entries int64
	if err := db.Model(&models.ScheduleEntry{}).Where("class_code = ?", "242508001").Count(&entries).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if entries != 0 {
		t.Fatalf("delete must remove the weekly template, %d entries left", entries)
	}
}

func TestScheduleTemplateCreateDetectsTeacherConflict(t *testing.T) {
	r, db := newTestRouter(t)
	seedClass(t, db, "242508001", "Grade 8 Section A")
	seedClass(t, db, "242509001", "Grade 9 Section A")
	admin := tokenFor(t, models.RoleAdmin)

	entry := map[string]any{
		"dayOfWeek":   2,
		"periodLabel": "P1",
		"startTime":   "09:00",
		"endTime":     "09:40",
		"teacherCode": "rajeshmaths080910",
		"subjectCode": "8_MATH",
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/classes/242508001/schedule", admin, entry)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Same teacher, overlapping window, different class.
	conflict := map[string]any{
		"dayOfWeek":   2,
		"periodLabel": "P1",
		"startTime":   "09:20",
		"endTime":     "10:00",
		"teacherCode": "rajeshmaths080910",
		"subjectCode": "9_MATH",
	}
	rr = doJSON(t, r, http.MethodPost, "/api/v1/classes/242509001/schedule", admin, conflict)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 teacher conflict, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Same teacher on a non-overlapping window is fine.
	later := map[string]any{
		"dayOfWeek":   2,
		"periodLabel": "P2",
		"startTime":   "09:40",
		"endTime":     "10:20",
		"teacherCode": "rajeshmaths080910",
		"subjectCode": "9_MATH",
	}
	rr = doJSON(t, r, http.MethodPost, "/api/v1/classes/242509001/schedule", admin, later)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for non-overlapping entry, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestScheduleTemplateCreateRequiresStaffRole(t *testing.T) {
	r, db := newTestRouter(t)
	seedClass(t, db, "242508001", "Grade 8 Section A")
	teacher := tokenFor(t, models.RoleTeacher)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/classes/242508001/schedule", teacher, map[string]any{
		"dayOfWeek":   1,
		"periodLabel": "P1",
		"startTime":   "09:00",
		"endTime":     "09:40",
		"teacherCode": "rajeshmaths080910",
		"subjectCode": "8_MATH",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for teacher role, got %d", rr.Code)
	}
}

func TestClassWeekEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	seedClass(t, db, "242508001", "Grade 8 Section A")
	student := tokenFor(t, models.RoleStudent)

	window := timetable.ResolveWeek(time.Now().UTC(), 0)
	day := models.CalendarDay{
		GridID:       models.GridIDFor("242508001", window.Days[0]),
		ClassCode:    "242508001",
		AcademicYear: "2024-2025",
		Date:         window.Days[0],
		DayOfWeek:    1,
		DayType:      models.DayNormal,
		MorningSlots: models.SlotList{
			"242508001_1_P1_0900_0940_rajeshmaths080910_8_MATH",
			slot.BareLunch("242508001"),
		},
	}
	if err := db.Create(&day).Error; err != nil {
		t.Fatalf("seed day: %v", err)
	}

	rr := doJSON(t, r, http.MethodGet, "/api/v1/timetable/classes/242508001/week?offset=0", student, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var view calendar.WeekView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Label != "Current Week" {
		t.Fatalf("unexpected label %q", view.Label)
	}
	if view.Cells[0][0].SubjectCode != "8_MATH" {
		t.Fatalf("unexpected first cell: %+v", view.Cells[0][0])
	}
}

func TestExamPlanPreviewAndApply(t *testing.T) {
	r, _ := newTestRouter(t)
	admin := tokenFor(t, models.RoleAdmin)

	// Monday and Tuesday, two sessions per day.
	preview := map[string]any{
		"examType":  "two_per_day",
		"classCode": "242508001",
		"startDate": "2025-03-03",
		"endDate":   "2025-03-04",
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/exams/preview", admin, preview)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var previewResp struct {
		State    string           `json:"state"`
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &previewResp); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(previewResp.Sessions) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(previewResp.Sessions))
	}

	// Apply with a missing subject fails the completeness gate.
	apply := map[string]any{
		"examType":  "two_per_day",
		"classCode": "242508001",
		"startDate": "2025-03-03",
		"endDate":   "2025-03-04",
		"subjects":  []string{"MATH", "SCI", "ENG", ""},
	}
	rr = doJSON(t, r, http.MethodPost, "/api/v1/plans/exams", admin, apply)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for incomplete plan, got %d body=%s", rr.Code, rr.Body.String())
	}

	apply["subjects"] = []string{"MATH", "SCI", "ENG", "HIN"}
	rr = doJSON(t, r, http.MethodPost, "/api/v1/plans/exams", admin, apply)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var applyResp struct {
		State   string `json:"state"`
		Applied int    `json:"applied"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &applyResp); err != nil {
		t.Fatalf("decode apply: %v", err)
	}
	if applyResp.Applied != 4 || applyResp.State != "done" {
		t.Fatalf("unexpected apply response: %+v", applyResp)
	}
}

func TestHolidayPlanApplyAndUpcoming(t *testing.T) {
	r, _ := newTestRouter(t)
	admin := tokenFor(t, models.RoleAdmin)

	start := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	apply := map[string]any{
		"name":       "Harvest Festival",
		"duration":   "full_day",
		"classCodes": []string{"242508001"},
		"startDate":  start,
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/holidays", admin, apply)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, http.MethodGet, "/api/v1/plans/holidays/upcoming", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Harvest Festival") {
		t.Fatalf("expected upcoming holiday in response, got %s", rr.Body.String())
	}
}

func TestHolidayImportICal(t *testing.T) {
	r, db := newTestRouter(t)
	seedClass(t, db, "242508001", "Grade 8 Section A")
	admin := tokenFor(t, models.RoleAdmin)

	ical := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:x1\r\nSUMMARY:Republic Day\r\nDTSTART;VALUE=DATE:20250126\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/holidays/import.ics", strings.NewReader(ical))
	req.Header.Set("Authorization", "Bearer "+admin)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var day models.CalendarDay
	gridID := models.GridIDFor("242508001", time.Date(2025, 1, 26, 0, 0, 0, 0, time.UTC))
	if err := db.Where("grid_id = ?", gridID).First(&day).Error; err != nil {
		t.Fatalf("imported holiday day missing: %v", err)
	}
	if day.DayType != models.DayFullHoliday || day.HolidayName != "Republic Day" {
		t.Fatalf("unexpected imported day: %+v", day)
	}
}

func TestTeacherWeekScopedToOwnCode(t *testing.T) {
	r, _ := newTestRouter(t)

	token, err := auth.Issue(testSecret, auth.Claims{
		UserID:      uuid.NewString(),
		Roles:       []string{string(models.RoleTeacher)},
		TeacherCode: "rajeshmaths080910",
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := doJSON(t, r, http.MethodGet, "/api/v1/timetable/teachers/meerasci080910/week", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for other teacher's week, got %d", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/api/v1/timetable/teachers/rajeshmaths080910/week", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for own week, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestClassWeekExportICal(t *testing.T) {
	r, db := newTestRouter(t)
	seedClass(t, db, "242508001", "Grade 8 Section A")
	admin := tokenFor(t, models.RoleAdmin)

	window := timetable.ResolveWeek(time.Now().UTC(), 0)
	day := models.CalendarDay{
		GridID:       models.GridIDFor("242508001", window.Days[0]),
		ClassCode:    "242508001",
		AcademicYear: "2024-2025",
		Date:         window.Days[0],
		DayOfWeek:    1,
		DayType:      models.DayNormal,
		MorningSlots: models.SlotList{"242508001_1_P1_0900_0940_rajeshmaths080910_8_MATH"},
	}
	if err := db.Create(&day).Error; err != nil {
		t.Fatalf("seed day: %v", err)
	}

	rr := doJSON(t, r, http.MethodGet, "/api/v1/timetable/classes/242508001/export.ics", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "SUMMARY:8_MATH") {
		t.Fatalf("unexpected ical payload: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
