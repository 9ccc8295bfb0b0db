// Package dispatch delivers the side effects produced by lifecycle actions.
// Delivery happens after the document is persisted and failures never roll
// the state change back; each outcome is reported to the caller instead.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"folio/api/internal/email"
	"folio/api/internal/lifecycle"
	"folio/api/internal/metrics"
)

var ErrDependencyFailure = errors.New("dependency failure")

// Sender delivers one templated email.
type Sender interface {
	Send(to, toName, templateID string, data email.TemplateData) error
}

// Outcome is the delivery result of a single side effect.
type Outcome struct {
	Effect    lifecycle.SideEffect `json:"effect"`
	Delivered bool                 `json:"delivered"`
	Err       error                `json:"-"`
}

type Dispatcher struct {
	sender  Sender
	baseURL string
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func New(sender Sender, publicBaseURL string, logger *zap.Logger, recorder *metrics.Recorder) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:  sender,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:  logger,
		metrics: recorder,
	}
}

// PublicLink builds the token-bearing share URL for a document.
func PublicLink(baseURL, collection, id, token string) string {
	values := url.Values{}
	values.Set("token", token)
	return fmt.Sprintf("%s/share/%s/%s?%s", strings.TrimRight(baseURL, "/"), collection, url.PathEscape(id), values.Encode())
}

// Dispatch sends every effect once, in order, and returns one outcome each.
func (d *Dispatcher) Dispatch(ctx context.Context, effects []lifecycle.SideEffect) []Outcome {
	outcomes := make([]Outcome, 0, len(effects))
	for _, effect := range effects {
		outcome := Outcome{Effect: effect}
		if err := ctx.Err(); err != nil {
			outcome.Err = fmt.Errorf("%w: %v", ErrDependencyFailure, err)
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Err = d.deliver(effect)
		outcome.Delivered = outcome.Err == nil
		d.metrics.Notification(effect.TemplateID, outcome.Err)
		if outcome.Err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("template", effect.TemplateID),
				zap.String("document_id", effect.Context["documentId"]),
				zap.Error(outcome.Err),
			)
		} else {
			d.logger.Info("notification delivered",
				zap.String("template", effect.TemplateID),
				zap.String("document_id", effect.Context["documentId"]),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (d *Dispatcher) deliver(effect lifecycle.SideEffect) error {
	if effect.Kind != lifecycle.EffectEmail {
		return fmt.Errorf("%w: unsupported effect %q", ErrDependencyFailure, effect.Kind)
	}
	if d.sender == nil {
		return fmt.Errorf("%w: no email sender configured", ErrDependencyFailure)
	}
	data := email.TemplateData{
		RecipientName: effect.ToName,
		DocumentName:  effect.Context["documentName"],
		Link:          PublicLink(d.baseURL, effect.Context["collection"], effect.Context["documentId"], effect.Context["token"]),
	}
	if err := d.sender.Send(effect.To, effect.ToName, effect.TemplateID, data); err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrDependencyFailure, effect.TemplateID, err)
	}
	return nil
}

// Warnings turns failed outcomes into user-facing partial-success messages.
func Warnings(outcomes []Outcome) []string {
	var warnings []string
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("email to %s was not delivered: %v", outcome.Effect.To, outcome.Err))
	}
	return warnings
}
