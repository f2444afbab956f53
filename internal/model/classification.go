package model

import (
	"strings"
	"time"
)

// ClassificationResult is the outcome of classifying one description.
type ClassificationResult struct {
	Description string               `json:"description"`
	HSCode      string               `json:"hsCode,omitempty"`
	Method      ClassificationMethod `json:"method"`
	Error       string               `json:"error,omitempty"`
	Confidence  float64              `json:"confidence"`
	Flagged     bool                 `json:"flagged"`
}

// FailedClassification builds the terminal result used whenever the remote
// classifier could not produce an answer.
func FailedClassification(description string, err error) ClassificationResult {
	result := ClassificationResult{
		Description: description,
		Method:      MethodFailed,
		Confidence:  0,
		Flagged:     true,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// IsFailed reports whether the result came from the failure path.
func (r ClassificationResult) IsFailed() bool {
	return r.Method == MethodFailed
}

// NormalizeDescription trims surrounding whitespace from a description.
func NormalizeDescription(description string) string {
	return strings.TrimSpace(description)
}

// ClassificationHistory is an append-only audit record of an HS code change.
// An empty UserID means the change was automated.
type ClassificationHistory struct {
	CreatedAt    time.Time
	LineID       string
	PreviousCode string
	NewCode      string
	UserID       string
	Comment      string
	ID           int64
}

// IsAutomated reports whether no user was involved in the change.
func (h ClassificationHistory) IsAutomated() bool {
	return h.UserID == ""
}

// BulkItem is one input to bulk classification.
type BulkItem struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
}

// BulkResult pairs an input id with its classification.
type BulkResult struct {
	ID string `json:"id,omitempty"`
	ClassificationResult
}

// Persistable reports whether the result may be written back onto its line.
// Rows without an id or without a code are never written.
func (r BulkResult) Persistable() bool {
	return r.ID != "" && r.HSCode != ""
}
