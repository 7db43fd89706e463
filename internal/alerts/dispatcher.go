package alerts

import (
	"context"
	"time"

	"remindpoint/internal/types"
)

// SubscriptionStore is the persistence surface the dispatcher needs.
// Satisfied by *db.AlertRepository.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]types.AlertSubscription, error)
	GetDedupe(ctx context.Context, scope string, alertType types.AlertType) (*types.AlertDedupeRecord, error)
	UpsertDedupe(ctx context.Context, scope string, alertType types.AlertType, sentAt time.Time, severity types.Severity) error
}

// Channel delivers a formatted alert to one destination address.
type Channel interface {
	Post(ctx context.Context, address string, a types.Alert) error
}

// DispatchOutcome is the per-destination delivery result. Delivery failures
// are values here, never errors out of Dispatch.
type DispatchOutcome struct {
	Address   string `json:"address"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// DispatchResult summarizes one Dispatch call.
type DispatchResult struct {
	Suppressed bool              `json:"suppressed"`
	Outcomes   []DispatchOutcome `json:"outcomes,omitempty"`
}

// Delivered reports whether at least one destination accepted the alert.
func (r DispatchResult) Delivered() bool {
	for _, o := range r.Outcomes {
		if o.Delivered {
			return true
		}
	}
	return false
}

// Dispatcher routes alerts to subscribed chat webhooks with severity-aware
// dedup suppression. A repeated alert of the same condition at the same or
// lower severity is suppressed inside the suppression window; an escalation
// to a higher severity always goes out immediately.
type Dispatcher struct {
	store       SubscriptionStore
	channel     Channel
	suppression time.Duration
	defaultURL  string
	defaultMin  types.Severity
	clock       types.Clock
	logger      types.Logger
}

// DispatcherConfig holds the dependencies for constructing a Dispatcher.
type DispatcherConfig struct {
	Store              SubscriptionStore
	Channel            Channel
	Suppression        time.Duration
	DefaultWebhookURL  string
	DefaultMinSeverity types.Severity
	Clock              types.Clock
	Logger             types.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Dispatcher{
		store:       cfg.Store,
		channel:     cfg.Channel,
		suppression: cfg.Suppression,
		defaultURL:  cfg.DefaultWebhookURL,
		defaultMin:  cfg.DefaultMinSeverity,
		clock:       clock,
		logger:      logger,
	}
}

// Dispatch delivers one alert to every matching subscription. Nothing here
// panics or returns an error: dedup-store failures fail open (better a
// duplicate page than a missed one) and delivery failures come back as
// outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, a types.Alert) DispatchResult {
	now := d.clock.Now()
	scope := a.Scope()

	if d.suppressed(ctx, scope, a, now) {
		d.logger.Info("alert suppressed by dedup window",
			"alert_type", string(a.Type),
			"scope", scope,
			"severity", string(a.Severity),
		)
		return DispatchResult{Suppressed: true}
	}

	addresses := d.resolveAddresses(ctx, a)
	if len(addresses) == 0 {
		// An alert with nowhere to go must still be visible somewhere.
		d.logger.Warn("alert has no matching subscriptions",
			"alert_type", string(a.Type),
			"scope", scope,
			"severity", string(a.Severity),
			"title", a.Title,
		)
		return DispatchResult{}
	}

	result := DispatchResult{}
	for _, addr := range addresses {
		outcome := DispatchOutcome{Address: addr}
		if err := d.channel.Post(ctx, addr, a); err != nil {
			outcome.Error = err.Error()
			d.logger.Error("alert delivery failed",
				"alert_type", string(a.Type),
				"address", addr,
				"error", err.Error(),
			)
		} else {
			outcome.Delivered = true
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	// Record the send only when something actually went out, so a total
	// delivery failure is retried on the next monitor tick instead of
	// being suppressed.
	if result.Delivered() {
		if err := d.store.UpsertDedupe(ctx, scope, a.Type, now, a.Severity); err != nil {
			d.logger.Error("failed to upsert alert dedupe record",
				"alert_type", string(a.Type),
				"scope", scope,
				"error", err.Error(),
			)
		}
	}

	return result
}

// suppressed reports whether the same alert condition was already dispatched
// at the same or higher severity inside the suppression window. An
// escalation (higher severity than last send) is never suppressed.
func (d *Dispatcher) suppressed(ctx context.Context, scope string, a types.Alert, now time.Time) bool {
	rec, err := d.store.GetDedupe(ctx, scope, a.Type)
	if err != nil {
		d.logger.Error("dedupe lookup failed, failing open",
			"alert_type", string(a.Type),
			"scope", scope,
			"error", err.Error(),
		)
		return false
	}
	if rec == nil {
		return false
	}
	if now.Sub(rec.LastSentAt) >= d.suppression {
		return false
	}
	return rec.LastSeverity.Rank() >= a.Severity.Rank()
}

// resolveAddresses picks the destination addresses for an alert: enabled
// subscriptions whose minimum severity the alert meets, preferring
// tenant-scoped subscriptions and falling back to global ones. When no
// subscription matches, the configured default webhook catches alerts at or
// above its minimum severity.
func (d *Dispatcher) resolveAddresses(ctx context.Context, a types.Alert) []string {
	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		d.logger.Error("subscription lookup failed", "error", err.Error())
		subs = nil
	}

	var tenantScoped, global []string
	for _, sub := range subs {
		if sub.Destination != types.DestinationChatWebhook {
			continue
		}
		if sub.MinSeverity.Rank() > a.Severity.Rank() {
			continue
		}
		switch sub.TenantID {
		case "":
			global = append(global, sub.Address)
		case a.TenantID:
			tenantScoped = append(tenantScoped, sub.Address)
		}
	}

	if len(tenantScoped) > 0 {
		return tenantScoped
	}
	if len(global) > 0 {
		return global
	}

	if d.defaultURL != "" && a.Severity.Rank() >= d.defaultMin.Rank() {
		return []string{d.defaultURL}
	}
	return nil
}
