// Package notify dispatches user-visible notifications raised by the
// verification engine. The wire format and delivery channels (email, SMS,
// push) live behind the Notifier interface; this package stops at dispatch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Notification kinds raised by the engine.
const (
	KindLevelChange        = "level_change"
	KindVerificationCode   = "verification_code"
	KindVerificationFailed = "verification_failed"
	KindReviewerRejected   = "reviewer_rejected"
	KindAttemptExpired     = "attempt_expired"
	KindVerifierRevoked    = "verifier_revoked"
)

// Notification is one dispatchable notification envelope.
type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	Kind        string                 `json:"kind"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// JSON serializes the notification.
func (n *Notification) JSON() ([]byte, error) {
	return json.Marshal(n)
}

// NewNotification builds an envelope with a generated id.
func NewNotification(recipientID, kind string, data map[string]interface{}) *Notification {
	return &Notification{
		ID:          fmt.Sprintf("ntf-%d", time.Now().UnixNano()),
		RecipientID: recipientID,
		Kind:        kind,
		Data:        data,
		CreatedAt:   time.Now(),
	}
}

// Notifier is the dispatch interface. Both the in-memory Bus and the
// Pub/Sub dispatcher satisfy it.
type Notifier interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// LogNotifier writes notifications to the process log. Used in development
// and as the fallback when no Pub/Sub project is configured.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		logger: log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
	}
}

// Dispatch logs the notification.
func (l *LogNotifier) Dispatch(_ context.Context, n *Notification) error {
	l.logger.Printf("-> %s to %s: %v", n.Kind, n.RecipientID, n.Data)
	return nil
}
