/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule renders timetable data to interchange formats: iCal feeds
// for calendar apps and printable HTML for notice boards.
package schedule

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/calendar"
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/planner"
	"github.com/friendsincode/gradehall/internal/slot"
	"github.com/friendsincode/gradehall/internal/timetable"
)

// ExportService handles timetable export and holiday import.
type ExportService struct {
	db     *gorm.DB
	svc    *calendar.Service
	codec  slot.Codec
	logger zerolog.Logger
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB, svc *calendar.Service, codec slot.Codec, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		svc:    svc,
		codec:  codec,
		logger: logger.With().Str("component", "schedule_export").Logger(),
	}
}

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportWeekToICal exports one class week to iCal format. Regular periods and
// exams become timed events, full holidays become all-day events.
func (s *ExportService) ExportWeekToICal(ctx context.Context, classCode, academicYear string, offset int, ref time.Time) (*ExportICalResult, error) {
	var class models.Class
	if err := s.db.WithContext(ctx).First(&class, "code = ?", classCode).Error; err != nil {
		return nil, fmt.Errorf("class not found: %w", err)
	}

	window := timetable.ResolveWeek(ref, offset)
	days, err := s.svc.FetchWeek(ctx, classCode, academicYear, window)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Gradehall//Timetable Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Timetable\r\n", escapeICalText(class.Name)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, day := range days {
		if day.DayType == models.DayFullHoliday {
			buf.WriteString("BEGIN:VEVENT\r\n")
			buf.WriteString(fmt.Sprintf("UID:%s-holiday@gradehall\r\n", day.GridID))
			buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(time.Now())))
			buf.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", day.Date.Format("20060102")))
			buf.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", day.Date.AddDate(0, 0, 1).Format("20060102")))
			summary := day.HolidayName
			if summary == "" {
				summary = "Holiday"
			}
			buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))
			buf.WriteString("END:VEVENT\r\n")
			continue
		}

		seq := 0
		for _, list := range []models.SlotList{day.MorningSlots, day.AfternoonSlots} {
			for _, raw := range list {
				tok := s.codec.Decode(raw)
				switch tok.Kind {
				case slot.KindRegular:
					s.writeSlotEvent(&buf, day, seq, tok.Start, tok.End,
						tok.SubjectCode, "Teacher: "+tok.TeacherCode)
				case slot.KindExam:
					start, end := examWindow(tok.Session, s.codec)
					s.writeSlotEvent(&buf, day, seq, start, end,
						"Exam: "+tok.SubjectCode, "")
				default:
					continue
				}
				seq++
			}
		}
	}

	buf.WriteString("END:VCALENDAR\r\n")

	filename := fmt.Sprintf("%s-timetable-%s.ics",
		slugify(class.Name), window.Monday().Format("2006-01-02"))

	return &ExportICalResult{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func (s *ExportService) writeSlotEvent(buf *bytes.Buffer, day models.CalendarDay, seq int, start, end, summary, description string) {
	startAt, okS := combineDateTime(day.Date, start)
	endAt, okE := combineDateTime(day.Date, end)
	if !okS || !okE {
		return
	}

	buf.WriteString("BEGIN:VEVENT\r\n")
	buf.WriteString(fmt.Sprintf("UID:%s-%d@gradehall\r\n", day.GridID, seq))
	buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(time.Now())))
	buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(startAt)))
	buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(endAt)))
	buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))
	if description != "" {
		buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(description)))
	}
	buf.WriteString("END:VEVENT\r\n")
}

// examWindow maps an exam session to its clock window. Mornings run from
// first period to lunch, afternoons from lunch to close of day.
func examWindow(session string, codec slot.Codec) (string, string) {
	switch session {
	case slot.SessionMorning:
		return "09:00", codec.LunchStart
	case slot.SessionAfternoon:
		return codec.LunchEnd, "15:40"
	default:
		return "09:00", "15:40"
	}
}

// ImportICalResult contains the result of an iCal holiday import.
type ImportICalResult struct {
	Entries []planner.HolidayEntry
	Skipped int
	Errors  []string
}

// ParseHolidaysFromICal reads an iCal feed of school holidays and maps each
// event to holiday entries for the given classes. All-day and timed events
// are both accepted; multi-day events expand to one entry per date.
func (s *ExportService) ParseHolidaysFromICal(data io.Reader, classCodes []string) (*ImportICalResult, error) {
	result := &ImportICalResult{}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(data); err != nil {
		return nil, fmt.Errorf("failed to read iCal data: %w", err)
	}

	for _, event := range parseICalEvents(buf.String()) {
		if event.Summary == "" || event.Start.IsZero() {
			result.Skipped++
			continue
		}
		end := event.End
		if end.IsZero() {
			end = event.Start
		} else if !end.Equal(event.Start) {
			// iCal DTEND is exclusive; the plan range is inclusive.
			end = end.AddDate(0, 0, -1)
		}

		for _, code := range classCodes {
			entries, err := planner.GenerateHolidayPlan(event.Start, end, event.Summary, planner.HolidayFullDay, code)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("skipping %s: %v", event.Summary, err))
				break
			}
			result.Entries = append(result.Entries, entries...)
		}
	}

	s.logger.Info().
		Int("entries", len(result.Entries)).
		Int("skipped", result.Skipped).
		Msg("iCal holiday import parsed")

	return result, nil
}

// ICalEvent represents a parsed iCal event.
type ICalEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
}

// parseICalEvents parses events from iCal content (simple implementation).
func parseICalEvents(content string) []ICalEvent {
	var events []ICalEvent
	var currentEvent *ICalEvent

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, "\r")

		if line == "BEGIN:VEVENT" {
			currentEvent = &ICalEvent{}
		} else if line == "END:VEVENT" && currentEvent != nil {
			events = append(events, *currentEvent)
			currentEvent = nil
		} else if currentEvent != nil {
			if strings.HasPrefix(line, "UID:") {
				currentEvent.UID = strings.TrimPrefix(line, "UID:")
			} else if strings.HasPrefix(line, "SUMMARY:") {
				currentEvent.Summary = unescapeICalText(strings.TrimPrefix(line, "SUMMARY:"))
			} else if strings.HasPrefix(line, "DTSTART") {
				currentEvent.Start = parseICalTime(afterColon(line))
			} else if strings.HasPrefix(line, "DTEND") {
				currentEvent.End = parseICalTime(afterColon(line))
			}
		}
	}

	return events
}

func afterColon(line string) string {
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		return line[idx+1:]
	}
	return line
}

// parseICalTime parses an iCal time string.
func parseICalTime(s string) time.Time {
	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// ExportWeekToHTML renders one class week as a printable grid.
func (s *ExportService) ExportWeekToHTML(ctx context.Context, classCode, academicYear string, offset int, ref time.Time) ([]byte, error) {
	var class models.Class
	if err := s.db.WithContext(ctx).First(&class, "code = ?", classCode).Error; err != nil {
		return nil, fmt.Errorf("class not found: %w", err)
	}

	view, err := s.svc.ComposeWeek(ctx, classCode, academicYear, offset, ref)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>` + class.Name + ` Timetable</title>
    <style>
        @page { margin: 1cm; }
        body { font-family: Arial, sans-serif; font-size: 10pt; line-height: 1.3; }
        h1 { font-size: 16pt; margin-bottom: 4mm; border-bottom: 2px solid #333; padding-bottom: 2mm; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 2mm; text-align: center; border: 1px solid #ccc; }
        th { background: #f5f5f5; font-weight: bold; }
        .day { text-align: left; white-space: nowrap; }
        .lunch { background: #fdf3dc; }
        .holiday { background: #e8f2ea; font-weight: bold; }
        .exam { background: #f3e6e6; }
        .teacher { display: block; font-size: 8pt; color: #666; }
        .footer { margin-top: 8mm; font-size: 8pt; color: #666; text-align: center; }
    </style>
</head>
<body>
    <h1>` + class.Name + ` - ` + view.Label + `</h1>
`)

	buf.WriteString("    <table>\n        <tr><th class=\"day\">Day</th>")
	for _, p := range view.Periods {
		buf.WriteString(fmt.Sprintf("<th>%s<br>%s-%s</th>", p.Label, p.Start, p.End))
	}
	buf.WriteString("</tr>\n")

	for i, day := range view.Days {
		buf.WriteString(fmt.Sprintf("        <tr><td class=\"day\">%s<br>%s</td>", day.DayName, day.Date))
		for _, cell := range view.Cells[i] {
			buf.WriteString(renderHTMLCell(cell))
		}
		buf.WriteString("</tr>\n")
	}

	buf.WriteString(`    </table>
    <div class="footer">
        Generated on ` + time.Now().Format("January 2, 2006 at 3:04 PM") + `
    </div>
</body>
</html>`)

	return buf.Bytes(), nil
}

func renderHTMLCell(cell timetable.Cell) string {
	switch cell.Kind {
	case timetable.CellClass:
		return fmt.Sprintf("<td>%s<span class=\"teacher\">%s</span></td>", cell.SubjectCode, cell.TeacherCode)
	case timetable.CellLunch:
		return "<td class=\"lunch\">Lunch</td>"
	case timetable.CellExam:
		return fmt.Sprintf("<td class=\"exam\">Exam: %s</td>", cell.SubjectCode)
	case timetable.CellHoliday:
		label := cell.Label
		if cell.HolidayName != "" {
			label = cell.HolidayName
		}
		return fmt.Sprintf("<td class=\"holiday\">%s</td>", label)
	default:
		return "<td></td>"
	}
}

// Helper functions

// combineDateTime joins a calendar date with an HH:MM clock value.
func combineDateTime(date time.Time, hhmm string) (time.Time, bool) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, time.UTC), true
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
