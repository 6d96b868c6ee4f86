package service

import (
	"context"
	"log"
	"time"

	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"
	"accountmart-api/pkg/uid"
)

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

// recordActivity appends an audit entry. Failures are logged, not returned:
// the operation that produced the entry has already committed.
func recordActivity(ctx context.Context, store repository.ActivityRepository, now time.Time, actor, action, detail string) {
	entry := &model.ActivityEntry{
		ID:        uid.New(),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		CreatedAt: now,
	}
	if err := store.AppendActivity(ctx, entry); err != nil {
		log.Printf("[Activity] Failed to record %s by %s: %v", action, actor, err)
	}
}

// sendNotification hands an event to the notifier outside any transaction.
func sendNotification(ctx context.Context, n notify.Notifier, now time.Time, kind notify.Kind, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, notify.Event{Kind: kind, Text: text, At: now}); err != nil {
		log.Printf("[Notify] Failed to send %s: %v", kind, err)
	}
}
