// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package chrometrace exports profiler results in the Chrome trace event
// format, viewable in chrome://tracing, Perfetto and Speedscope.
package chrometrace

import (
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	profiler "github.com/gogpu/wgpu-profiler"
)

type (
	// Event is one complete ("X") trace event. Timestamps and durations
	// are in microseconds, per the trace event format.
	Event struct {
		Name      string  `json:"name"`
		Category  string  `json:"cat,omitempty"`
		Phase     string  `json:"ph"`
		Timestamp float64 `json:"ts"`
		Duration  float64 `json:"dur"`
		PID       int     `json:"pid"`
		TID       uint64  `json:"tid"`
	}

	trace struct {
		TraceEvents     []Event `json:"traceEvents"`
		DisplayTimeUnit string  `json:"displayTimeUnit"`
	}
)

const phaseComplete = "X"

// Events flattens result trees into trace events. Event timestamps place
// the earliest scope at epoch; GPU and CPU clocks have no common origin, so
// epoch is typically the wall time the frame was submitted.
//
// Scopes recorded without timing become zero-duration events at their
// nearest timed ancestor's start (or at epoch for untimed roots), keeping
// the tree visible in the viewer.
func Events(results []profiler.Result, epoch time.Time) []Event {
	base := time.Duration(-1)
	for _, r := range results {
		if r.Timed && (base < 0 || r.Start < base) {
			base = r.Start
		}
	}
	if base < 0 {
		base = 0
	}

	epochUS := float64(epoch.UnixNano()) / 1e3
	var events []Event
	for _, r := range results {
		events = appendEvents(events, r, epochUS, base, 0)
	}
	return events
}

func appendEvents(events []Event, r profiler.Result, epochUS float64, base, fallback time.Duration) []Event {
	start := fallback
	var dur time.Duration
	if r.Timed {
		start = r.Start - base
		dur = r.End - r.Start
	}
	events = append(events, Event{
		Name:      r.Label,
		Category:  "gpu",
		Phase:     phaseComplete,
		Timestamp: epochUS + float64(start.Nanoseconds())/1e3,
		Duration:  float64(dur.Nanoseconds()) / 1e3,
		PID:       r.PID,
		TID:       r.TrackID,
	})
	for _, child := range r.Children {
		events = appendEvents(events, child, epochUS, base, start)
	}
	return events
}

// Write emits the results of one or more frames as a JSON object trace.
func Write(w io.Writer, results []profiler.Result, epoch time.Time) error {
	enc := json.NewEncoder(w)
	return enc.Encode(trace{
		TraceEvents:     Events(results, epoch),
		DisplayTimeUnit: "ms",
	})
}

// WriteFile writes a trace file at path, replacing any existing file.
func WriteFile(path string, results []profiler.Result, epoch time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, results, epoch); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
