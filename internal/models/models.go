package models

import (
	"fmt"
	"time"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RoleStaff   RoleName = "staff"
	RoleTeacher RoleName = "teacher"
	RoleStudent RoleName = "student"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      RoleName `gorm:"type:varchar(16)"`
	Suspended bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey is a long-lived credential for integrations such as hallway display
// boards. Only the SHA-256 hash is stored; the plaintext is shown once.
type APIKey struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	UserID     string `gorm:"index"`
	Name       string
	KeyHash    string `gorm:"uniqueIndex"`
	KeyPrefix  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the key's lifetime has passed.
func (k *APIKey) IsExpired() bool {
	return time.Now().After(k.ExpiresAt)
}

// IsRevoked reports whether the key was revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// AcademicYear scopes schedules and calendars to a school year.
type AcademicYear struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Label     string `gorm:"uniqueIndex"` // e.g. "2024-2025"
	StartsOn  time.Time
	EndsOn    time.Time
	Active    bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Class is a section of students, identified on the wire by its numeric code.
type Class struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Code         string `gorm:"uniqueIndex"` // e.g. "242508001"
	Name         string `gorm:"index"`       // e.g. "Grade 8 Section A"
	AcademicYear string `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject is a taught discipline.
type Subject struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Code      string `gorm:"uniqueIndex"` // e.g. "8_MATH"
	Name      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Teacher is a staff member assignable to schedule entries.
type Teacher struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Code      string `gorm:"uniqueIndex"` // wire identifier, e.g. "rajeshmaths080910"
	Name      string `gorm:"index"`
	Email     string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Student belongs to a class.
type Student struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"index"`
	ClassCode string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleEntry is one cell of the weekly teaching template for a class.
// The calendar materializer expands these into CalendarDay slot tokens.
type ScheduleEntry struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	ClassCode    string `gorm:"index"`
	AcademicYear string `gorm:"index"`
	DayOfWeek    int    // 1 = Monday .. 6 = Saturday
	PeriodLabel  string `gorm:"type:varchar(16)"` // e.g. "P1"
	StartTime    string `gorm:"type:varchar(5)"`  // HH:MM
	EndTime      string `gorm:"type:varchar(5)"`
	TeacherCode  string `gorm:"index"`
	SubjectCode  string `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DayType classifies a calendar day.
type DayType string

const (
	DayNormal      DayType = "normal"
	DayHalfHoliday DayType = "half_holiday"
	DayFullHoliday DayType = "full_holiday"
)

// SlotList stores an ordered list of slot tokens as a JSON column.
type SlotList []string

// CalendarDay is one materialized day of a class calendar. Slot arrays hold
// encoded slot tokens; day type and holiday fields override slot rendering.
type CalendarDay struct {
	GridID          string    `gorm:"primaryKey"` // "<classCode>_<YYYY-MM-DD>"
	ClassCode       string    `gorm:"index"`
	AcademicYear    string    `gorm:"index"`
	Date            time.Time `gorm:"index"`
	DayOfWeek       int
	DayType         DayType `gorm:"type:varchar(16)"`
	HolidayName     string
	HolidayDuration string   `gorm:"type:varchar(16)"` // full_day or half_day
	ExamType        string   `gorm:"type:varchar(16)"` // one_per_day or two_per_day
	MorningSlots    SlotList `gorm:"serializer:json"`
	AfternoonSlots  SlotList `gorm:"serializer:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GridIDFor builds the composite calendar day key.
func GridIDFor(classCode string, date time.Time) string {
	return fmt.Sprintf("%s_%s", classCode, date.Format("2006-01-02"))
}
