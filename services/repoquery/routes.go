// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repoquery

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all repoquery routes with the router.
//
// Description:
//
//	Registers the /v1/repoquery/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Endpoints:
//
//	POST /v1/repoquery/query - Answer a question about the repository
//	GET  /v1/repoquery/health - Health check
//	GET  /v1/repoquery/metrics - Prometheus metrics
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	repoquery := rg.Group("/repoquery")
	{
		repoquery.POST("/query", handlers.HandleQuery)
		repoquery.GET("/health", handlers.HandleHealth)
		repoquery.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
