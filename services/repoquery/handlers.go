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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/repoquery/services/repoquery/agent"
)

// Handlers contains the HTTP handlers for the repoquery service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleQuery handles POST /v1/repoquery/query.
//
// Description:
//
//	Runs one question-answering session against the configured
//	repository and returns the model's final answer.
//
// Request Body:
//
//	QueryRequest
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Validation error
//	502 Bad Gateway: Chat service failure
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question must not be empty",
			Code:  "EMPTY_QUESTION",
		})
		return
	}

	logger.Info("Processing query", "question_len", len(req.Question))

	result, err := h.svc.Query(c.Request.Context(), req.Question)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "QUERY_FAILED"

		if errors.Is(err, agent.ErrChatFailed) {
			statusCode = http.StatusBadGateway
			errCode = "CHAT_FAILED"
		} else if errors.Is(err, agent.ErrEmptyQuestion) {
			statusCode = http.StatusBadRequest
			errCode = "EMPTY_QUESTION"
		}

		logger.Error("Query failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Query complete",
		"session_id", result.SessionID,
		"iterations", result.Iterations,
		"exhausted", result.Exhausted,
	)

	c.JSON(http.StatusOK, QueryResponse{
		Response:   result.Answer,
		Exhausted:  result.Exhausted,
		SessionID:  result.SessionID,
		Iterations: result.Iterations,
	})
}

// HandleHealth handles GET /v1/repoquery/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    ServiceVersion,
		Repository: h.svc.RepositoryRoot(),
	})
}

// getOrCreateRequestID returns the request ID from the X-Request-ID header,
// generating one if absent. The ID is echoed back in the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
