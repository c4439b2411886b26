/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timetable

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Period is one column of the weekly grid. Start and End are HH:MM. A lunch
// column is excluded from exam matching and rendered as a lunch break.
type Period struct {
	Label string `yaml:"label"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Lunch bool   `yaml:"lunch,omitempty"`
}

// DefaultPeriods returns the standard nine period school day with the lunch
// break interleaved after the fourth period.
func DefaultPeriods() []Period {
	return []Period{
		{Label: "P1", Start: "09:00", End: "09:40"},
		{Label: "P2", Start: "09:40", End: "10:20"},
		{Label: "P3", Start: "10:20", End: "11:00"},
		{Label: "P4", Start: "11:00", End: "11:40"},
		{Label: "Lunch Break", Start: "11:40", End: "12:20", Lunch: true},
		{Label: "P5", Start: "12:20", End: "13:00"},
		{Label: "P6", Start: "13:00", End: "13:40"},
		{Label: "P7", Start: "13:40", End: "14:20"},
		{Label: "P8", Start: "14:20", End: "15:00"},
		{Label: "P9", Start: "15:00", End: "15:40"},
	}
}

// LoadPeriods reads a period column table from a YAML file. An empty path
// yields the default layout.
func LoadPeriods(path string) ([]Period, error) {
	if path == "" {
		return DefaultPeriods(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read period table: %w", err)
	}

	var doc struct {
		Periods []Period `yaml:"periods"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse period table: %w", err)
	}
	if err := validatePeriods(doc.Periods); err != nil {
		return nil, err
	}
	return doc.Periods, nil
}

func validatePeriods(periods []Period) error {
	if len(periods) == 0 {
		return fmt.Errorf("period table is empty")
	}
	prev := ""
	for i, p := range periods {
		if p.Label == "" {
			return fmt.Errorf("period %d: missing label", i)
		}
		if len(p.Start) != 5 || len(p.End) != 5 || p.Start[2] != ':' || p.End[2] != ':' {
			return fmt.Errorf("period %q: times must be HH:MM", p.Label)
		}
		if p.End <= p.Start {
			return fmt.Errorf("period %q: end %s not after start %s", p.Label, p.End, p.Start)
		}
		if prev != "" && p.Start < prev {
			return fmt.Errorf("period %q: overlaps previous column", p.Label)
		}
		prev = p.End
	}
	return nil
}
