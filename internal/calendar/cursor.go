/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStale reports that a newer offset was requested while this composition
// was in flight; the caller should drop the result.
var ErrStale = errors.New("calendar: week request superseded")

// WeekCursor serializes week navigation for one viewer. When offsets change
// faster than compositions finish, only the most recently requested offset
// produces a result; superseded requests return ErrStale instead of racing
// stale grids into the view.
type WeekCursor struct {
	svc *Service

	mu  sync.Mutex
	gen uint64
}

// NewWeekCursor builds a cursor over the calendar service.
func NewWeekCursor(svc *Service) *WeekCursor {
	return &WeekCursor{svc: svc}
}

// Compose behaves like Service.ComposeWeek but discards results that were
// overtaken by a newer call.
func (c *WeekCursor) Compose(ctx context.Context, classCode, academicYear string, offset int, ref time.Time) (*WeekView, error) {
	mine := c.begin()

	view, err := c.svc.ComposeWeek(ctx, classCode, academicYear, offset, ref)
	if err != nil {
		return nil, err
	}

	if !c.current(mine) {
		return nil, ErrStale
	}
	return view, nil
}

// WeekCursors holds one cursor per viewer and class, so independent viewers
// browsing different grids never supersede each other. The map is bounded by
// active users times classes.
type WeekCursors struct {
	svc *Service

	mu      sync.Mutex
	cursors map[string]*WeekCursor
}

// NewWeekCursors builds the per-viewer cursor registry.
func NewWeekCursors(svc *Service) *WeekCursors {
	return &WeekCursors{svc: svc, cursors: make(map[string]*WeekCursor)}
}

// For returns the cursor tracking one viewer's navigation of one class grid,
// creating it on first use.
func (c *WeekCursors) For(viewerID, classCode string) *WeekCursor {
	key := viewerID + "|" + classCode
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cursors[key]
	if !ok {
		cur = NewWeekCursor(c.svc)
		c.cursors[key] = cur
	}
	return cur
}

// begin registers a new request and returns its generation.
func (c *WeekCursor) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// current reports whether gen is still the newest request.
func (c *WeekCursor) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}
