// Package aiengine talks to the external scoring and rewriting service.
package aiengine

import (
	"context"
	"errors"
	"fmt"

	"supercv-backend/internal/analyses"
	"supercv-backend/resume/model"
)

// ErrRejected marks input the engine refused to process, such as an
// unreadable or near-empty CV. Retrying will not help.
var ErrRejected = errors.New("ai engine rejected input")

// AnalyzeInput is one analysis request.
type AnalyzeInput struct {
	FileName string
	Content  []byte
	// CVText is the locally extracted text, sent alongside the file when known.
	CVText  string
	JobText string
	JobURL  string
}

// CustomizeInput is one rewrite request.
type CustomizeInput struct {
	FileName        string
	Content         []byte
	CVText          string
	Mode            analyses.Mode
	JobText         string
	AnalysisContext string
}

// Client is the engine contract used by the worker.
type Client interface {
	Analyze(ctx context.Context, in AnalyzeInput) (analyses.ResultPayload, error)
	Customize(ctx context.Context, in CustomizeInput) (model.Document, error)
}

// StatusError is returned for non-2xx engine responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ai engine: http status %d", e.Code)
	}
	return fmt.Sprintf("ai engine: http status %d: %s", e.Code, e.Detail)
}
