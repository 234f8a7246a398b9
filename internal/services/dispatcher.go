package services

import (
	"context"

	"github.com/liquidgold/wallet/internal/models"
)

type originKey struct{}

// WithOrigin attaches the caller's network address to a context so committed
// events carry it into the audit trail.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the network address recorded on the context, if any.
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// Dispatcher fans committed events out to the audit recorder and the
// notification emitter. Gamification is not a subscriber here: XP is applied
// synchronously inside each primitive's transaction, while audit and
// notifications fire after commit and never roll a mutation back.
type Dispatcher struct {
	audit    *AuditRecorder
	notifier *NotificationService
}

func NewDispatcher(audit *AuditRecorder, notifier *NotificationService) *Dispatcher {
	return &Dispatcher{audit: audit, notifier: notifier}
}

// Publish delivers an ordered event list produced by one committed primitive.
// Audit entries are written immediately; notifications are handed off
// asynchronously, matching the delivery contract.
func (d *Dispatcher) Publish(ctx context.Context, events []models.Event) {
	if d == nil || len(events) == 0 {
		return
	}

	origin := OriginFrom(ctx)
	if d.audit != nil {
		for _, e := range events {
			if e.Action != "" {
				d.audit.RecordEvent(e, origin)
			}
		}
	}

	if d.notifier != nil {
		go func(events []models.Event) {
			ctx := context.Background()
			for _, e := range events {
				d.notifier.PushEvent(ctx, e)
			}
		}(events)
	}
}
