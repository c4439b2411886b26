/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"fmt"
	"time"
)

// DraftState tracks an exam plan through the authoring flow.
type DraftState string

const (
	StateConfiguring     DraftState = "configuring"
	StateSessionsDrafted DraftState = "sessions_drafted"
	StateSubmitting      DraftState = "submitting"
	StateDone            DraftState = "done"
)

// ErrNoSessions rejects generation over a range with no eligible days.
var ErrNoSessions = errors.New("planner: date range yields no sessions")

// Draft is the explicit authoring state machine for an exam plan: configure
// the range, generate sessions, fill subjects, submit. Transitions out of
// order are errors; the subject completeness gate guards the move from
// drafted to submitting.
type Draft struct {
	state    DraftState
	examType ExamType
	class    string
	sessions []ExamSession
}

// NewDraft starts an empty draft in the configuring state.
func NewDraft(examType ExamType, classCode string) *Draft {
	return &Draft{state: StateConfiguring, examType: examType, class: classCode}
}

// State reports the current authoring phase.
func (d *Draft) State() DraftState { return d.state }

// Sessions exposes the drafted sessions for editing and display.
func (d *Draft) Sessions() []ExamSession { return d.sessions }

// Generate expands the configured range and moves to the drafted state.
func (d *Draft) Generate(start, end time.Time) error {
	if d.state != StateConfiguring {
		return d.transitionError("generate")
	}
	sessions, err := GenerateExamPlan(start, end, d.examType, d.class)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return ErrNoSessions
	}
	d.sessions = sessions
	d.state = StateSessionsDrafted
	return nil
}

// SetSubject assigns a subject code to one drafted session.
func (d *Draft) SetSubject(index int, subjectCode string) error {
	if d.state != StateSessionsDrafted {
		return d.transitionError("set subject")
	}
	if index < 0 || index >= len(d.sessions) {
		return fmt.Errorf("planner: session index %d out of range", index)
	}
	d.sessions[index].SubjectCode = subjectCode
	return nil
}

// Submit runs the completeness gate and moves to submitting. The caller
// persists the sessions and then calls Complete.
func (d *Draft) Submit() ([]ExamSession, error) {
	if d.state != StateSessionsDrafted {
		return nil, d.transitionError("submit")
	}
	if err := ValidateExamPlan(d.sessions); err != nil {
		return nil, err
	}
	d.state = StateSubmitting
	return d.sessions, nil
}

// Complete marks the draft persisted.
func (d *Draft) Complete() error {
	if d.state != StateSubmitting {
		return d.transitionError("complete")
	}
	d.state = StateDone
	return nil
}

func (d *Draft) transitionError(op string) error {
	return fmt.Errorf("planner: cannot %s in state %s", op, d.state)
}
