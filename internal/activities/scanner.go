package activities

import (
	"context"
	"log"
	"strings"
)

const maxDocumentBytes = 20 << 20

var reviewableDocTypes = map[string]bool{
	"drivers_license":   true,
	"passport":          true,
	"state_id":          true,
	"business_license":  true,
	"tax_document":      true,
	"irs_determination": true,
}

// BasicScanner applies structural checks to an upload: the handle must be
// present, the declared type reviewable, and the size within bounds. Content
// inspection happens later, at human review.
type BasicScanner struct{}

func (BasicScanner) Scan(_ context.Context, in ValidateDocumentInput) (ValidateDocumentResult, error) {
	if strings.TrimSpace(in.DocumentHandle) == "" {
		return ValidateDocumentResult{Reason: "missing document handle"}, nil
	}
	if !reviewableDocTypes[in.DocumentType] {
		return ValidateDocumentResult{Reason: "unsupported document type " + in.DocumentType}, nil
	}
	if in.SizeBytes <= 0 || in.SizeBytes > maxDocumentBytes {
		return ValidateDocumentResult{Reason: "document size out of bounds"}, nil
	}
	return ValidateDocumentResult{Valid: true}, nil
}

// LogReviewQueue stands in for a real review pipeline during local runs.
type LogReviewQueue struct {
	logger *log.Logger
}

func NewLogReviewQueue() *LogReviewQueue {
	return &LogReviewQueue{logger: log.New(log.Writer(), "[REVIEW] ", log.LstdFlags)}
}

func (q *LogReviewQueue) Enqueue(_ context.Context, in EnqueueForReviewInput) error {
	q.logger.Printf("queued %s document %s for attempt %s (subject %s)",
		in.Method, in.DocumentHandle, in.AttemptID, in.SubjectID)
	return nil
}
