package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/types"
)

var testDraft = types.Draft{Subject: "Quick question", Body: "Hi Jane, loved your work on things."}

func TestProfileInteraction_Sends(t *testing.T) {
	cfg := testConfig()
	gen := &stubGenerator{draft: testDraft}
	page := newFakePage()
	row := rows(1)[0]

	outcome, err := newInteraction(cfg, gen, clock.NewFake(epoch)).Process(context.Background(), page, nil, row)
	require.NoError(t, err)

	assert.Equal(t, types.EmailSent, outcome.Status)
	assert.Equal(t, testDraft, outcome.Draft)
	assert.Equal(t, []string{row.ProfileURL, "https://example.com/messaging/compose?recipient=ACoAAB123"}, page.visited)
	assert.Equal(t, "Quick question", page.filled["#subject"])
	assert.Equal(t, []string{testDraft.Body}, page.typed)
	assert.True(t, page.sent())
}

func TestProfileInteraction_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(p *fakePage)
		row         func(r *types.ProfileRow)
		genErr      error
		gate        *scriptedGate
		wantStatus  types.EmailStatus
		wantReason  types.Reason
		wantMessage string
		wantTyped   bool
	}{
		{
			name: "no recipient channel is skipped before composing",
			setup: func(p *fakePage) {
				p.present["#email-mode"] = true
				p.present["#no-address"] = true
			},
			row:         func(r *types.ProfileRow) { r.LastName, r.Company = "", "" },
			wantStatus:  types.EmailSkipped,
			wantReason:  types.ReasonNoRecipientChannel,
			wantMessage: MsgNoRecipientChannel,
		},
		{
			name:        "missing messaging id",
			setup:       func(p *fakePage) { p.html = "<html><body><main>Jane</main></body></html>" },
			wantStatus:  types.EmailFailed,
			wantReason:  types.ReasonResolution,
			wantMessage: MsgResolutionFailed,
		},
		{
			name:       "generation failure",
			genErr:     errors.New("model overloaded"),
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonGeneration,
		},
		{
			name:       "profile navigation failure",
			setup:      func(p *fakePage) { p.navErr[rows(1)[0].ProfileURL] = errors.New("net::ERR_NAME_NOT_RESOLVED") },
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonNavigation,
		},
		{
			name:       "message editor missing",
			setup:      func(p *fakePage) { delete(p.present, "#body") },
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonUIState,
		},
		{
			name:        "send control disabled",
			setup:       func(p *fakePage) { p.disabled = true },
			wantStatus:  types.EmailFailed,
			wantReason:  types.ReasonSendControlDisabled,
			wantMessage: MsgSendControlDisabled,
			wantTyped:   true,
		},
		{
			name:        "operator skips",
			gate:        &scriptedGate{results: []gate.Result{gate.Skip}},
			wantStatus:  types.EmailSkipped,
			wantReason:  types.ReasonUserSkipped,
			wantMessage: MsgSkippedByOperator,
			wantTyped:   true,
		},
		{
			name:        "gate times out",
			gate:        &scriptedGate{results: []gate.Result{gate.Timeout}},
			wantStatus:  types.EmailFailed,
			wantReason:  types.ReasonTimeout,
			wantMessage: MsgTimeout,
			wantTyped:   true,
		},
		{
			name:        "unrecognized key",
			gate:        &scriptedGate{results: []gate.Result{gate.Unrecognized}},
			wantStatus:  types.EmailFailed,
			wantReason:  types.ReasonUnrecognizedKey,
			wantMessage: MsgUnrecognizedKey,
			wantTyped:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			if tt.setup != nil {
				tt.setup(page)
			}
			row := rows(1)[0]
			if tt.row != nil {
				tt.row(&row)
			}

			var hg HumanGate
			if tt.gate != nil {
				hg = tt.gate
			}

			gen := &stubGenerator{draft: testDraft, err: tt.genErr}
			outcome, err := newInteraction(testConfig(), gen, clock.NewFake(epoch)).Process(context.Background(), page, hg, row)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantReason, outcome.Reason)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, outcome.Message)
			} else {
				assert.NotEmpty(t, outcome.Message)
			}
			assert.False(t, page.sent(), "send must not be clicked")
			assert.Equal(t, tt.wantTyped, len(page.typed) > 0)
		})
	}
}

func TestProfileInteraction_GateTimeoutUsesConfig(t *testing.T) {
	cfg := testConfig()
	hg := &scriptedGate{results: []gate.Result{gate.Confirm}}

	outcome, err := newInteraction(cfg, &stubGenerator{draft: testDraft}, clock.NewFake(epoch)).Process(context.Background(), newFakePage(), hg, rows(1)[0])
	require.NoError(t, err)
	assert.Equal(t, types.EmailSent, outcome.Status)
	assert.Equal(t, []time.Duration{cfg.Gate.Timeout}, hg.timeouts)
}

func TestProfileInteraction_MissingSubjectField(t *testing.T) {
	page := newFakePage()
	delete(page.present, "#subject")

	outcome, err := newInteraction(testConfig(), &stubGenerator{draft: testDraft}, clock.NewFake(epoch)).Process(context.Background(), page, nil, rows(1)[0])
	require.NoError(t, err)
	assert.Equal(t, types.EmailSent, outcome.Status)
	assert.Empty(t, page.filled)
}

func TestProfileInteraction_InjectsDerivedAddress(t *testing.T) {
	page := newFakePage()
	page.present["#email-mode"] = true
	page.present["#no-address"] = true
	page.present["#recipient"] = true

	outcome, err := newInteraction(testConfig(), &stubGenerator{draft: testDraft}, clock.NewFake(epoch)).Process(context.Background(), page, nil, rows(1)[0])
	require.NoError(t, err)
	assert.Equal(t, types.EmailSent, outcome.Status)
	assert.Equal(t, "jane.doe@acme.com", page.filled["#recipient"])
}

func TestProfileInteraction_SessionLost(t *testing.T) {
	page := newFakePage()
	page.lost = true
	gen := &stubGenerator{draft: testDraft}

	outcome, err := newInteraction(testConfig(), gen, clock.NewFake(epoch)).Process(context.Background(), page, nil, rows(1)[0])
	require.Error(t, err)
	assert.True(t, IsSessionError(err))
	assert.Equal(t, types.EmailFailed, outcome.Status)
	assert.Equal(t, types.ReasonSession, outcome.Reason)
	assert.Zero(t, gen.calls)
}

func TestProfileInteraction_GateErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		cancel     bool
		wantErr    error
		wantStatus types.EmailStatus
		wantReason types.Reason
	}{
		{
			name:       "connection lost aborts the session",
			err:        errors.Join(browser.ErrSessionLost, errors.New("binding gone")),
			wantErr:    ErrSession,
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonSession,
		},
		{
			name:       "cancelled wait aborts the session",
			err:        context.Canceled,
			cancel:     true,
			wantErr:    ErrSession,
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonSession,
		},
		{
			name:       "script failure fails only the row",
			err:        errors.New("failed to arm gate: evaluate failed: syntax error"),
			wantStatus: types.EmailFailed,
			wantReason: types.ReasonUIState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			hg := &scriptedGate{err: tt.err}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				hg.onAwait = cancel
			}

			outcome, err := newInteraction(testConfig(), &stubGenerator{draft: testDraft}, clock.NewFake(epoch)).Process(ctx, page, hg, rows(1)[0])
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Contains(t, outcome.Message, "gate")
			}
			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.False(t, page.sent())
		})
	}
}

func TestProfileInteraction_SubjectQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantLost bool
	}{
		{name: "query failure fails the row", err: errors.New("strict mode violation: #subject resolved to 2 elements")},
		{name: "lost session is returned", err: errors.Join(browser.ErrSessionLost, errors.New("target closed")), wantLost: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			page.existErr = map[string]error{"#subject": tt.err}

			outcome, err := newInteraction(testConfig(), &stubGenerator{draft: testDraft}, clock.NewFake(epoch)).Process(context.Background(), page, nil, rows(1)[0])
			if tt.wantLost {
				require.Error(t, err)
				assert.True(t, IsSessionError(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, types.ReasonUIState, outcome.Reason)
				assert.Contains(t, outcome.Message, "subject")
			}
			assert.Equal(t, types.EmailFailed, outcome.Status)
			assert.Empty(t, page.filled)
			assert.Empty(t, page.typed)
			assert.False(t, page.sent())
		})
	}
}

func TestProfileInteraction_PacesThroughClock(t *testing.T) {
	clk := clock.NewFake(epoch)

	_, err := newInteraction(testConfig(), &stubGenerator{draft: testDraft}, clk).Process(context.Background(), newFakePage(), nil, rows(1)[0])
	require.NoError(t, err)
	assert.NotEmpty(t, clk.Sleeps())
	assert.True(t, clk.Now().After(epoch))
}
