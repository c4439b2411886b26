/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slot encodes and decodes the compact timetable slot tokens stored
// on calendar days. Four token kinds share the same underscore-delimited wire
// shape and are distinguished by markers and field count; Decode recovers the
// typed form and never fails, malformed input degrades to Unrecognized.
package slot

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the decoded token variants.
type Kind string

const (
	KindRegular      Kind = "regular"
	KindLunch        Kind = "lunch"
	KindExam         Kind = "exam"
	KindUnrecognized Kind = "unrecognized"
)

// Exam session types.
const (
	SessionMorning   = "morning"
	SessionAfternoon = "afternoon"
	SessionFullDay   = "full_day"
)

// Token is the decoded form of one slot string. Fields are populated per
// Kind: Regular uses ClassCode through SubjectCode, Lunch uses Start/End,
// Exam uses SubjectCode and Session, Unrecognized keeps only Raw.
type Token struct {
	Kind Kind

	ClassCode   string
	DayOfWeek   int
	PeriodLabel string
	Start       string // HH:MM
	End         string // HH:MM
	TeacherCode string
	SubjectCode string
	Session     string

	Raw string
}

// Codec carries the canonical lunch window needed to decode bare lunch
// tokens, which do not encode their own times.
type Codec struct {
	LunchStart string // HH:MM
	LunchEnd   string
}

// NewCodec returns a codec with the given canonical lunch window.
func NewCodec(lunchStart, lunchEnd string) Codec {
	return Codec{LunchStart: lunchStart, LunchEnd: lunchEnd}
}

const lunchMarker = "LUNCH"

// Decode maps a raw slot string to exactly one token variant. It is total:
// any input, including empty or binary garbage, yields a token. Precedence is
// lunch, then exam, then regular; everything else is Unrecognized.
func (c Codec) Decode(raw string) Token {
	if strings.Contains(raw, lunchMarker) {
		return c.decodeLunch(raw)
	}
	if strings.HasPrefix(raw, "EXAM_") {
		return decodeExam(raw)
	}
	return decodeRegular(raw)
}

func (c Codec) decodeLunch(raw string) Token {
	parts := strings.Split(raw, "_")

	// Bare shape: LUNCH_<classCode>_LUNCH, window supplied by configuration.
	if len(parts) == 3 && parts[0] == lunchMarker && parts[2] == lunchMarker {
		return Token{Kind: KindLunch, Start: c.LunchStart, End: c.LunchEnd}
	}

	// Tagged shape: seven fields with a period marker and an HHMM window.
	if len(parts) == 7 && isPeriodLabel(parts[2]) {
		start, okS := clockTime(parts[3])
		end, okE := clockTime(parts[4])
		if okS && okE {
			return Token{Kind: KindLunch, Start: start, End: end}
		}
	}

	return Token{Kind: KindUnrecognized, Raw: raw}
}

func decodeExam(raw string) Token {
	parts := strings.Split(raw, "_")
	if len(parts) < 3 {
		return Token{Kind: KindUnrecognized, Raw: raw}
	}
	// Subject codes carry underscores themselves (grade prefixes like
	// "8_MATH"), so the session is anchored at the tail and the subject is
	// everything between prefix and session rejoined.
	session := parts[len(parts)-1]
	switch session {
	case SessionMorning, SessionAfternoon, SessionFullDay:
	default:
		return Token{Kind: KindUnrecognized, Raw: raw}
	}
	return Token{
		Kind:        KindExam,
		SubjectCode: strings.Join(parts[1:len(parts)-1], "_"),
		Session:     session,
	}
}

func decodeRegular(raw string) Token {
	parts := strings.Split(raw, "_")
	if len(parts) < 7 {
		return Token{Kind: KindUnrecognized, Raw: raw}
	}

	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return Token{Kind: KindUnrecognized, Raw: raw}
	}
	start, okS := clockTime(parts[3])
	end, okE := clockTime(parts[4])
	if !okS || !okE {
		return Token{Kind: KindUnrecognized, Raw: raw}
	}

	return Token{
		Kind:        KindRegular,
		ClassCode:   parts[0],
		DayOfWeek:   day,
		PeriodLabel: parts[2],
		Start:       start,
		End:         end,
		TeacherCode: parts[5],
		// The subject code is everything after the teacher field rejoined,
		// so grade-prefixed codes like "8_MATH" survive intact.
		SubjectCode: strings.Join(parts[6:], "_"),
	}
}

// Encode is the inverse of Decode per variant. Unrecognized tokens encode
// back to their preserved raw string.
func (c Codec) Encode(t Token) string {
	switch t.Kind {
	case KindRegular:
		return fmt.Sprintf("%s_%d_%s_%s_%s_%s_%s",
			t.ClassCode, t.DayOfWeek, t.PeriodLabel,
			compactTime(t.Start), compactTime(t.End),
			t.TeacherCode, t.SubjectCode)
	case KindLunch:
		// Always the tagged shape so non-canonical windows round-trip.
		return fmt.Sprintf("LUNCH_0_P0_%s_%s_LUNCH_LUNCH",
			compactTime(t.Start), compactTime(t.End))
	case KindExam:
		return fmt.Sprintf("EXAM_%s_%s", t.SubjectCode, t.Session)
	default:
		return t.Raw
	}
}

// BareLunch renders the short lunch token shape used by upstream authoring.
func BareLunch(classCode string) string {
	return fmt.Sprintf("LUNCH_%s_LUNCH", classCode)
}

// isPeriodLabel reports whether v looks like "P<n>".
func isPeriodLabel(v string) bool {
	if len(v) < 2 || v[0] != 'P' {
		return false
	}
	for i := 1; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// clockTime reformats a four digit HHMM field to HH:MM.
func clockTime(v string) (string, bool) {
	if len(v) != 4 {
		return "", false
	}
	for i := 0; i < 4; i++ {
		if v[i] < '0' || v[i] > '9' {
			return "", false
		}
	}
	h := int(v[0]-'0')*10 + int(v[1]-'0')
	m := int(v[2]-'0')*10 + int(v[3]-'0')
	if h > 23 || m > 59 {
		return "", false
	}
	return v[:2] + ":" + v[2:], true
}

// compactTime strips the colon from an HH:MM value for token encoding.
func compactTime(v string) string {
	return strings.ReplaceAll(v, ":", "")
}
