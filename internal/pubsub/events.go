package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"app/internal/config"
	"app/internal/model"

	"github.com/rs/zerolog"
)

// QuotaAlertEvent is the payload published when a quota threshold alert is created.
type QuotaAlertEvent struct {
	UserID              string    `json:"user_id"`
	QuotaType           string    `json:"quota_type"`
	AlertType           string    `json:"alert_type"`
	ThresholdPercentage int       `json:"threshold_percentage"`
	Message             string    `json:"message"`
	CreatedAt           time.Time `json:"created_at"`
}

// PlanChangeEvent is the payload published when a plan transition is recorded.
type PlanChangeEvent struct {
	UserID      string    `json:"user_id"`
	FromPlan    string    `json:"from_plan"`
	ToPlan      string    `json:"to_plan"`
	ChangeType  string    `json:"change_type"`
	RefundCents int       `json:"refund_cents,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Events publishes engine events for downstream consumers (notification
// senders, billing reconciliation). Publishing is best effort: failures are
// logged, never propagated into the originating operation. A nil *Events
// disables eventing.
type Events struct {
	pub             Publisher
	quotaAlertTopic string
	planChangeTopic string
	logger          zerolog.Logger
}

// NewEvents wraps a Publisher with the engine's topics.
func NewEvents(pub Publisher, cfg *config.Config, logger zerolog.Logger) *Events {
	return &Events{
		pub:             pub,
		quotaAlertTopic: cfg.QuotaAlertTopic,
		planChangeTopic: cfg.PlanChangeTopic,
		logger:          logger.With().Str("service", "Events").Logger(),
	}
}

// PublishQuotaAlert emits a quota alert event.
func (e *Events) PublishQuotaAlert(ctx context.Context, alert *model.QuotaAlert) {
	if e == nil {
		return
	}
	e.publish(ctx, e.quotaAlertTopic, QuotaAlertEvent{
		UserID:              alert.UserID,
		QuotaType:           alert.QuotaType,
		AlertType:           alert.AlertType,
		ThresholdPercentage: alert.ThresholdPercentage,
		Message:             alert.Message,
		CreatedAt:           alert.CreatedAt,
	})
}

// PublishPlanChange emits a plan transition event.
func (e *Events) PublishPlanChange(ctx context.Context, change *model.PlanChange) {
	if e == nil {
		return
	}
	e.publish(ctx, e.planChangeTopic, PlanChangeEvent{
		UserID:      change.UserID,
		FromPlan:    change.FromPlan,
		ToPlan:      change.ToPlan,
		ChangeType:  change.ChangeType,
		RefundCents: change.RefundCents,
		CreatedAt:   change.CreatedAt,
	})
}

func (e *Events) publish(ctx context.Context, topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event payload")
		return
	}
	if _, err := e.pub.Publish(ctx, topic, data); err != nil {
		e.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
