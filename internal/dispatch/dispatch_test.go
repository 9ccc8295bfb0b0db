package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"folio/api/internal/email"
	"folio/api/internal/lifecycle"
)

type fakeSender struct {
	calls []email.TemplateData
	err   error
}

func (f *fakeSender) Send(to, toName, templateID string, data email.TemplateData) error {
	f.calls = append(f.calls, data)
	return f.err
}

func effect() lifecycle.SideEffect {
	return lifecycle.SideEffect{
		Kind:       lifecycle.EffectEmail,
		To:         "jane@x.com",
		ToName:     "Jane",
		TemplateID: "feedback.sent",
		Context: map[string]string{
			"documentId":   "fb 1",
			"documentName": "Review",
			"collection":   "feedback",
			"token":        "tok/1",
		},
	}
}

func TestDispatchDeliversWithPublicLink(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, "https://folio.test/", nil, nil)

	outcomes := d.Dispatch(context.Background(), []lifecycle.SideEffect{effect()})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Delivered)
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "https://folio.test/share/feedback/fb%201?token=tok%2F1", sender.calls[0].Link)
	assert.Empty(t, Warnings(outcomes))
}

func TestDispatchSurfacesFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &fakeSender{err: errors.New("connection refused")}
	d := New(sender, "https://folio.test", zap.New(core), nil)

	outcomes := d.Dispatch(context.Background(), []lifecycle.SideEffect{effect()})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Delivered)
	assert.ErrorIs(t, outcomes[0].Err, ErrDependencyFailure)
	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())

	warnings := Warnings(outcomes)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "jane@x.com")
}

func TestDispatchWithoutSender(t *testing.T) {
	d := New(nil, "", nil, nil)
	outcomes := d.Dispatch(context.Background(), []lifecycle.SideEffect{effect()})
	assert.ErrorIs(t, outcomes[0].Err, ErrDependencyFailure)
}

func TestDispatchHonoursCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, "https://folio.test", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := d.Dispatch(ctx, []lifecycle.SideEffect{effect(), effect()})
	require.Len(t, outcomes, 2)
	assert.Empty(t, sender.calls)
	assert.ErrorIs(t, outcomes[1].Err, ErrDependencyFailure)
}
