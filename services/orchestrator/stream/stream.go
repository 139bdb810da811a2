// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream adapts executor events onto client-facing transports:
// newline-delimited JSON over HTTP and JSON frames over WebSocket.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// Mode classifies a line for clients that render chat and task traffic
// differently.
const (
	ModeChat  = "chat"
	ModeTask  = "task"
	ModeError = "error"
)

// Line is the wire form of one execution event.
//
// Step is the event phase under its client-facing name; the only rename
// is chatReply -> chatCompleted, kept for client compatibility.
type Line struct {
	Mode      string         `json:"mode"`
	Status    string         `json:"status"`
	Step      string         `json:"step"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// FromEvent converts an executor event to its wire form.
func FromEvent(ev datatypes.ExecutionEvent) Line {
	mode := ModeTask
	step := string(ev.Phase)
	switch ev.Phase {
	case datatypes.PhaseChatReply:
		mode = ModeChat
		step = "chatCompleted"
	case datatypes.PhaseSystemError:
		mode = ModeError
	}

	data := ev.Data
	if ev.NodeID != "" || ev.ToolName != "" {
		data = make(map[string]any, len(ev.Data)+2)
		for k, v := range ev.Data {
			data[k] = v
		}
		if ev.NodeID != "" {
			data["node_id"] = ev.NodeID
		}
		if ev.ToolName != "" {
			data["tool_name"] = ev.ToolName
		}
	}

	return Line{
		Mode:      mode,
		Status:    string(ev.Status),
		Step:      step,
		Message:   ev.Message,
		Data:      data,
		Timestamp: ev.Timestamp,
	}
}

// LineWriter emits NDJSON lines to an http.ResponseWriter, flushing
// after every line so clients observe events as they happen.
//
// Thread Safety: safe for concurrent use; writes are serialized.
type LineWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	broken  bool
}

// NewLineWriter wraps w. The flusher is optional; without it lines are
// still written but arrive at the transport's buffering cadence.
func NewLineWriter(w http.ResponseWriter) *LineWriter {
	lw := &LineWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		lw.flusher = f
	}
	return lw
}

// Emit writes one event as an NDJSON line. A failed write marks the
// stream broken; later events are dropped silently since the client is
// gone.
func (lw *LineWriter) Emit(ev datatypes.ExecutionEvent) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.broken {
		return
	}

	payload, err := json.Marshal(FromEvent(ev))
	if err != nil {
		slog.Error("stream: marshal event failed",
			slog.String("phase", string(ev.Phase)),
			slog.String("error", err.Error()),
		)
		return
	}
	payload = append(payload, '\n')
	if _, err := lw.w.Write(payload); err != nil {
		slog.Warn("stream: client write failed, dropping remaining events",
			slog.String("error", err.Error()),
		)
		lw.broken = true
		return
	}
	if lw.flusher != nil {
		lw.flusher.Flush()
	}
}

// Collector buffers events in memory. Used by the synchronous entry
// point and by tests.
type Collector struct {
	mu     sync.Mutex
	events []datatypes.ExecutionEvent
}

func (c *Collector) Emit(ev datatypes.ExecutionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of everything emitted so far.
func (c *Collector) Events() []datatypes.ExecutionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]datatypes.ExecutionEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Lines returns the collected events in wire form.
func (c *Collector) Lines() []Line {
	events := c.Events()
	lines := make([]Line, len(events))
	for i, ev := range events {
		lines[i] = FromEvent(ev)
	}
	return lines
}
