// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// writeWait bounds a single frame write. A client that cannot drain one
// frame in this window is treated as gone.
const writeWait = 10 * time.Second

// WSBridge emits execution events as JSON frames on a WebSocket
// connection.
//
// Thread Safety: safe for concurrent use; gorilla/websocket allows only
// one concurrent writer, so frames are serialized under a mutex.
type WSBridge struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	broken bool
}

// NewWSBridge wraps an upgraded connection. The caller retains ownership
// of the read side (control frames, client close).
func NewWSBridge(conn *websocket.Conn) *WSBridge {
	return &WSBridge{conn: conn}
}

// Emit sends one event frame. Like LineWriter, a failed write marks the
// bridge broken and later events are dropped.
func (b *WSBridge) Emit(ev datatypes.ExecutionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return
	}
	if err := b.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		b.broken = true
		return
	}
	if err := b.conn.WriteJSON(FromEvent(ev)); err != nil {
		slog.Warn("stream: websocket write failed, dropping remaining events",
			slog.String("error", err.Error()),
		)
		b.broken = true
	}
}

// Close sends a close frame and closes the connection.
func (b *WSBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return b.conn.Close()
}
