/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timetable

import (
	"testing"
	"time"

	"github.com/friendsincode/gradehall/internal/models"
	"github.com/friendsincode/gradehall/internal/slot"
)

func testComposer() *Composer {
	return NewComposer(DefaultPeriods(), slot.NewCodec("11:40", "12:20"))
}

func testWindow() WeekWindow {
	// Week of Monday 2025-03-03.
	return ResolveWeek(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), 0)
}

func dayFor(w WeekWindow, index int) models.CalendarDay {
	return models.CalendarDay{
		GridID:    models.GridIDFor("242508001", w.Days[index]),
		ClassCode: "242508001",
		Date:      w.Days[index],
		DayOfWeek: index + 1,
		DayType:   models.DayNormal,
	}
}

func TestComposeRegularAndLunchCells(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 1) // Tuesday
	day.MorningSlots = models.SlotList{
		"242508001_2_P1_0900_0940_rajeshmaths080910_8_MATH",
		slot.BareLunch("242508001"),
	}
	day.AfternoonSlots = models.SlotList{
		"242508001_2_P5_1220_1300_meerasci080910_8_SCI",
	}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	row := grid.Cells[1]

	if row[0].Kind != CellClass || row[0].SubjectCode != "8_MATH" || row[0].TeacherCode != "rajeshmaths080910" {
		t.Fatalf("unexpected P1 cell: %+v", row[0])
	}
	if row[4].Kind != CellLunch {
		t.Fatalf("expected lunch cell in lunch column, got %+v", row[4])
	}
	if row[5].Kind != CellClass || row[5].SubjectCode != "8_SCI" {
		t.Fatalf("unexpected P5 cell: %+v", row[5])
	}
	if row[1].Kind != CellEmpty {
		t.Fatalf("expected empty P2 cell, got %+v", row[1])
	}
}

func TestComposeFullHolidayDominates(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 0)
	day.DayType = models.DayFullHoliday
	day.HolidayName = "Founders Day"
	// Slot content must be ignored outright.
	day.MorningSlots = models.SlotList{
		"242508001_1_P1_0900_0940_rajeshmaths080910_8_MATH",
		slot.BareLunch("242508001"),
	}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	for pi, cell := range grid.Cells[0] {
		if cell.Kind != CellHoliday || cell.Label != LabelHoliday {
			t.Fatalf("column %d: expected holiday cell, got %+v", pi, cell)
		}
		if cell.HolidayName != "Founders Day" {
			t.Fatalf("column %d: holiday name missing: %+v", pi, cell)
		}
	}
}

func TestComposeHalfHolidayFillsUnmatchedCells(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 2)
	day.DayType = models.DayHalfHoliday
	day.HolidayName = "Sports Afternoon"
	day.MorningSlots = models.SlotList{
		"242508001_3_P1_0900_0940_rajeshmaths080910_8_MATH",
		slot.BareLunch("242508001"),
	}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	row := grid.Cells[2]

	if row[0].Kind != CellClass {
		t.Fatalf("expected class cell to survive on half holiday, got %+v", row[0])
	}
	if row[4].Kind != CellLunch {
		t.Fatalf("expected lunch cell to survive on half holiday, got %+v", row[4])
	}
	for _, pi := range []int{1, 2, 3, 5, 6, 7, 8, 9} {
		if row[pi].Kind != CellHoliday || row[pi].Label != LabelHalfHoliday {
			t.Fatalf("column %d: expected half holiday cell, got %+v", pi, row[pi])
		}
	}
}

func TestComposeExamSessionCompatibility(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 3)
	day.MorningSlots = models.SlotList{"EXAM_MATH_morning", slot.BareLunch("242508001")}
	day.AfternoonSlots = models.SlotList{"EXAM_SCI_afternoon"}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	row := grid.Cells[3]

	for _, pi := range []int{0, 1, 2, 3} {
		if row[pi].Kind != CellExam || row[pi].SubjectCode != "MATH" {
			t.Fatalf("morning column %d: expected MATH exam, got %+v", pi, row[pi])
		}
	}
	if row[4].Kind != CellLunch {
		t.Fatalf("lunch column must never carry an exam, got %+v", row[4])
	}
	for _, pi := range []int{5, 6, 7, 8, 9} {
		if row[pi].Kind != CellExam || row[pi].SubjectCode != "SCI" {
			t.Fatalf("afternoon column %d: expected SCI exam, got %+v", pi, row[pi])
		}
	}
}

func TestComposeGradePrefixedExamSubject(t *testing.T) {
	// An applied exam plan writes tokens like EXAM_8_MATH_morning; the grid
	// must render them as exam cells with the full subject code.
	w := testWindow()
	day := dayFor(w, 2)
	day.MorningSlots = models.SlotList{"EXAM_8_MATH_morning", slot.BareLunch("242508001")}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	row := grid.Cells[2]
	if row[0].Kind != CellExam || row[0].SubjectCode != "8_MATH" {
		t.Fatalf("expected 8_MATH exam cell, got %+v", row[0])
	}
}

func TestComposeFullDayExamSpansBothHalves(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 4)
	day.MorningSlots = models.SlotList{"EXAM_ENG_full_day", slot.BareLunch("242508001")}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	for pi, cell := range grid.Cells[4] {
		if pi == 4 {
			if cell.Kind != CellLunch {
				t.Fatalf("lunch column: got %+v", cell)
			}
			continue
		}
		if cell.Kind != CellExam || cell.SubjectCode != "ENG" {
			t.Fatalf("column %d: expected full day exam, got %+v", pi, cell)
		}
	}
}

func TestComposeDegradesToEmptyCells(t *testing.T) {
	w := testWindow()
	day := dayFor(w, 5)
	day.MorningSlots = models.SlotList{"corrupt", "", "also_not_a_token"}

	grid := testComposer().Compose(w, []models.CalendarDay{day})
	for pi, cell := range grid.Cells[5] {
		if cell.Kind != CellEmpty {
			t.Fatalf("column %d: expected empty cell, got %+v", pi, cell)
		}
	}

	// Days absent from storage render as fully empty rows, never an error.
	for pi, cell := range grid.Cells[0] {
		if cell.Kind != CellEmpty {
			t.Fatalf("missing day column %d: expected empty cell, got %+v", pi, cell)
		}
	}
}
