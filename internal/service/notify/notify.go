// Package notify delivers human-readable operator notifications.
// Delivery is best-effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"log"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindRegistration    Kind = "registration"
	KindPurchase        Kind = "purchase"
	KindPaymentRequest  Kind = "payment_request"
	KindPaymentApproved Kind = "payment_approved"
	KindPaymentRejected Kind = "payment_rejected"
)

// Event is one notification.
type Event struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Notifier sends events somewhere an operator will see them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	log.Printf("[Notify] %s: %s", ev.Kind, ev.Text)
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(ctx context.Context, ev Event) error { return nil }
