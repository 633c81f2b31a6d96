package analyses

import (
	"errors"
	"strings"
)

// Mode selects the kind of customization pass.
type Mode string

const (
	// ModeAnalysis is a general audit of the CV.
	ModeAnalysis Mode = "analysis"
	// ModeJobDesc re-optimizes the CV against the submitted job context.
	ModeJobDesc Mode = "job_desc"
)

// ParseMode normalizes and validates a mode string.
func ParseMode(raw string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", errors.New("customization mode is required")
	}
	switch normalized {
	case string(ModeAnalysis):
		return ModeAnalysis, nil
	case string(ModeJobDesc), "job_description", "job_match":
		return ModeJobDesc, nil
	default:
		return "", errors.New("customization mode is invalid")
	}
}
