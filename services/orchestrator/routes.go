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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all orchestrator routes with the router.
//
// Description:
//
//	Registers all /v1/orchestrator/* endpoints with the given Gin router
//	group. The group should already have any required middleware applied.
//
// Execution Endpoints:
//
//	POST /v1/orchestrator/run - Execute a plan or utterance, NDJSON event stream
//	POST /v1/orchestrator/run/sync - Execute and return result + events in one body
//	GET  /v1/orchestrator/ws - WebSocket execution, one run per request frame
//
// Tool Endpoints:
//
//	GET    /v1/orchestrator/tools - List visible tools
//	POST   /v1/orchestrator/tools - Register a user-supplied tool
//	GET    /v1/orchestrator/tools/:name/source - Stored tool source text
//	DELETE /v1/orchestrator/tools/:name - Remove a non-built-in tool
//
// Health Endpoints:
//
//	GET /v1/orchestrator/health - Liveness check
//	GET /v1/orchestrator/ready - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	orch := rg.Group("/orchestrator")
	{
		// Execution
		orch.POST("/run", handlers.HandleRun)
		orch.POST("/run/sync", handlers.HandleRunSync)
		orch.GET("/ws", handlers.HandleWS)

		// Tool management
		orch.GET("/tools", handlers.HandleListTools)
		orch.POST("/tools", handlers.HandleRegisterTool)
		orch.GET("/tools/:name/source", handlers.HandleToolSource)
		orch.DELETE("/tools/:name", handlers.HandleDeleteTool)

		// Health checks
		orch.GET("/health", handlers.HandleHealth)
		orch.GET("/ready", handlers.HandleReady)
	}
}
