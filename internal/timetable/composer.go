/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timetable

import (
	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/slot"
)

// CellKind discriminates rendered grid cells.
type CellKind string

const (
	CellHoliday CellKind = "holiday"
	CellLunch   CellKind = "lunch"
	CellExam    CellKind = "exam"
	CellClass   CellKind = "class"
	CellEmpty   CellKind = "empty"
)

// Holiday cell labels.
const (
	LabelHoliday     = "HOLIDAY"
	LabelHalfHoliday = "HALF HOLIDAY"
)

// Cell is one rendered grid position.
type Cell struct {
	Kind        CellKind `json:"kind"`
	Label       string   `json:"label,omitempty"`
	HolidayName string   `json:"holidayName,omitempty"`
	SubjectCode string   `json:"subjectCode,omitempty"`
	TeacherCode string   `json:"teacherCode,omitempty"`
}

// Grid is the composed weekly view: one row per business day, one cell per
// period column.
type Grid struct {
	Window  WeekWindow
	Periods []Period
	Cells   [BusinessDays][]Cell
}

type half int

const (
	halfMorning half = iota
	halfAfternoon
	halfLunch
)

// Composer merges calendar day records into a weekly grid. It is stateless
// after construction and safe for concurrent use.
type Composer struct {
	periods []Period
	codec   slot.Codec
	halves  []half
}

// NewComposer builds a composer over an immutable period column list.
func NewComposer(periods []Period, codec slot.Codec) *Composer {
	c := &Composer{periods: periods, codec: codec}

	// Columns before the lunch break are the morning half, columns after it
	// the afternoon half. Without a lunch column the codec's canonical lunch
	// start is the boundary.
	boundary := codec.LunchStart
	for _, p := range periods {
		if p.Lunch {
			boundary = p.Start
			break
		}
	}
	c.halves = make([]half, len(periods))
	for i, p := range periods {
		switch {
		case p.Lunch:
			c.halves[i] = halfLunch
		case p.Start < boundary:
			c.halves[i] = halfMorning
		default:
			c.halves[i] = halfAfternoon
		}
	}
	return c
}

// Compose renders the grid for a resolved window. Days may arrive in any
// order and may be sparse; a missing day renders as empty cells. The result
// is total: malformed tokens and unknown shapes degrade to empty cells, a
// full holiday dominates every column regardless of slot content.
func (c *Composer) Compose(window WeekWindow, days []models.CalendarDay) Grid {
	byDate := make(map[string]models.CalendarDay, len(days))
	for _, d := range days {
		byDate[d.Date.Format("2006-01-02")] = d
	}

	grid := Grid{Window: window, Periods: c.periods}
	for di, date := range window.Days {
		row := make([]Cell, len(c.periods))
		day, ok := byDate[date.Format("2006-01-02")]
		for pi := range c.periods {
			if !ok {
				row[pi] = Cell{Kind: CellEmpty}
				continue
			}
			row[pi] = c.cell(day, pi)
		}
		grid.Cells[di] = row
	}
	return grid
}

func (c *Composer) cell(day models.CalendarDay, pi int) Cell {
	if day.DayType == models.DayFullHoliday {
		return Cell{Kind: CellHoliday, Label: LabelHoliday, HolidayName: day.HolidayName}
	}

	p := c.periods[pi]
	for _, list := range [2]models.SlotList{day.MorningSlots, day.AfternoonSlots} {
		for _, raw := range list {
			tok := c.codec.Decode(raw)
			switch tok.Kind {
			case slot.KindLunch:
				if tok.Start == p.Start && tok.End == p.End {
					return Cell{Kind: CellLunch}
				}
			case slot.KindExam:
				if c.examMatches(tok.Session, pi) {
					return Cell{Kind: CellExam, SubjectCode: tok.SubjectCode}
				}
			case slot.KindRegular:
				if tok.Start == p.Start && tok.End == p.End {
					return Cell{Kind: CellClass, SubjectCode: tok.SubjectCode, TeacherCode: tok.TeacherCode}
				}
			}
		}
	}

	if day.DayType == models.DayHalfHoliday {
		return Cell{Kind: CellHoliday, Label: LabelHalfHoliday, HolidayName: day.HolidayName}
	}
	return Cell{Kind: CellEmpty}
}

// examMatches checks session compatibility with a column. Lunch columns never
// carry exam cells, a full day session fits either half.
func (c *Composer) examMatches(session string, pi int) bool {
	if c.halves[pi] == halfLunch {
		return false
	}
	switch session {
	case slot.SessionFullDay:
		return true
	case slot.SessionMorning:
		return c.halves[pi] == halfMorning
	case slot.SessionAfternoon:
		return c.halves[pi] == halfAfternoon
	default:
		return false
	}
}
