// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
	"github.com/AleutianAI/relay/services/orchestrator/executor"
	"github.com/AleutianAI/relay/services/orchestrator/stream"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RunRequest is the body of the run endpoints. Either Plan or UserText
// must be set; both set means "execute this plan" and UserText is kept
// for final-output context only.
type RunRequest struct {
	Plan     *datatypes.Plan `json:"plan,omitempty"`
	UserText string          `json:"user_text,omitempty"`
	Context  map[string]any  `json:"context,omitempty"`
}

// RegisterToolRequest is the body of POST /tools.
type RegisterToolRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description,omitempty"`
	Schema      datatypes.ParameterSchema `json:"parameter_schema,omitempty"`
	SourceText  string                    `json:"source_text,omitempty"`
}

// Handlers exposes the Service over gin.
type Handlers struct {
	svc      *Service
	upgrader websocket.Upgrader
}

// NewHandlers builds the handler set.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (h *Handlers) bindRun(c *gin.Context) (executor.Input, bool) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_BODY"})
		return executor.Input{}, false
	}
	if req.Plan == nil && strings.TrimSpace(req.UserText) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "either plan or user_text is required",
			Code:  "MISSING_PARAMETER",
		})
		return executor.Input{}, false
	}
	return executor.Input{Plan: req.Plan, UserText: req.UserText, Context: req.Context}, true
}

// HandleRun handles POST /v1/orchestrator/run.
//
// Description:
//
//	Executes the request and streams execution events as NDJSON, one
//	line per event, flushed as they happen. The HTTP status is always
//	200; failures travel inside the stream as systemError / pipelineEnd
//	lines, matching what WebSocket clients see.
func (h *Handlers) HandleRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	input, ok := h.bindRun(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("X-Request-ID", requestID)
	c.Status(http.StatusOK)

	writer := stream.NewLineWriter(c.Writer)
	if _, err := h.svc.RunTask(c.Request.Context(), input, writer); err != nil {
		slog.Info("run finished with error",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// RunSyncResponse is the body of POST /v1/orchestrator/run/sync.
type RunSyncResponse struct {
	Result *datatypes.Result `json:"result"`
	Events []stream.Line     `json:"events"`
}

// HandleRunSync handles POST /v1/orchestrator/run/sync: one JSON
// response carrying the final result plus the buffered event stream.
func (h *Handlers) HandleRunSync(c *gin.Context) {
	input, ok := h.bindRun(c)
	if !ok {
		return
	}
	result, lines, err := h.svc.RunTaskSync(c.Request.Context(), input)
	status := http.StatusOK
	if err != nil {
		// The failure detail is already inside result and events.
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, RunSyncResponse{Result: result, Events: lines})
}

// HandleWS handles GET /v1/orchestrator/ws.
//
// Description:
//
//	Upgrades to WebSocket, then serves one run per received request
//	frame. Events stream back as JSON frames. The connection stays open
//	for subsequent requests until the client closes it.
func (h *Handlers) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return // Upgrade already wrote the HTTP error.
	}
	bridge := stream.NewWSBridge(conn)
	defer bridge.Close()

	for {
		var req RunRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}
		input := executor.Input{Plan: req.Plan, UserText: req.UserText, Context: req.Context}
		if _, err := h.svc.RunTask(c.Request.Context(), input, bridge); err != nil {
			slog.Info("websocket run finished with error", slog.String("error", err.Error()))
		}
	}
}

// HandleListTools handles GET /v1/orchestrator/tools.
func (h *Handlers) HandleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.svc.Registry.List()})
}

// HandleRegisterTool handles POST /v1/orchestrator/tools: registers a
// user-supplied tool and persists it to the catalog.
func (h *Handlers) HandleRegisterTool(c *gin.Context) {
	var req RegisterToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_BODY"})
		return
	}

	rec := datatypes.ToolRecord{
		Name:        req.Name,
		Description: req.Description,
		Schema:      req.Schema,
		SourceText:  req.SourceText,
		Provenance:  datatypes.ProvenanceUserSupplied,
	}
	if err := h.svc.Registry.Register(rec); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_TOOL"})
		return
	}
	resolved, err := h.svc.Registry.Resolve(req.Name)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "SOURCE_LOAD_FAILED"})
		return
	}
	if err := h.svc.Registry.Save(c.Request.Context(), resolved.Name, resolved.Handler,
		resolved.Description, resolved.Schema, resolved.Provenance); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "SAVE_FAILED"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": resolved.Name, "provenance": resolved.Provenance})
}

// HandleToolSource handles GET /v1/orchestrator/tools/:name/source,
// returning the stored source text as plain text. Works even when the
// stored source no longer compiles.
func (h *Handlers) HandleToolSource(c *gin.Context) {
	name := c.Param("name")
	rec, ok := h.svc.Registry.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown tool: " + name, Code: "NOT_FOUND"})
		return
	}
	if failure := h.svc.Registry.LoadFailure(name); failure != "" {
		c.Header("X-Load-Failure", failure)
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(h.svc.Registry.ExtractSource(rec)))
}

// HandleDeleteTool handles DELETE /v1/orchestrator/tools/:name.
func (h *Handlers) HandleDeleteTool(c *gin.Context) {
	name := c.Param("name")
	err := h.svc.Registry.Delete(c.Request.Context(), name)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, datatypes.ErrUnknownTool):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	default:
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "FORBIDDEN"})
	}
}

// HandleHealth handles GET /v1/orchestrator/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/orchestrator/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	if err := h.svc.Ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "NOT_READY"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "tools": len(h.svc.Registry.Names())})
}
