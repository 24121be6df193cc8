package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/contact"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// Messages stored on records for the outcomes operators see most.
const (
	MsgResolutionFailed    = "resolution failed"
	MsgNoRecipientChannel  = "no recipient channel"
	MsgSendControlDisabled = "send control disabled"
	MsgTimeout             = "timeout"
	MsgSkippedByOperator   = "skipped by operator"
	MsgUnrecognizedKey     = "unrecognized key"
)

// State is a step of the profile interaction.
type State string

const (
	StateInit             State = "init"
	StateNavigated        State = "navigated"
	StateContentExtracted State = "content_extracted"
	StateMessageGenerated State = "message_generated"
	StateContactResolved  State = "contact_resolved"
	StateComposed         State = "composed"
	StateSendEligible     State = "send_eligible"
	StateSent             State = "sent"
)

// ProfileInteraction takes one profile from navigation to a terminal outcome.
// Each step either advances the state or ends the row with a tagged outcome,
// so history can tell which step failed.
type ProfileInteraction struct {
	cfg       *config.Config
	generator ContentGenerator
	resolver  ContactResolver
	channels  ChannelSelector
	clock     clock.Clock
	logger    *logging.Logger
}

// NewProfileInteraction creates the per-row state machine.
func NewProfileInteraction(cfg *config.Config, generator ContentGenerator, resolver ContactResolver, channels ChannelSelector, clk clock.Clock, logger *logging.Logger) *ProfileInteraction {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProfileInteraction{
		cfg:       cfg,
		generator: generator,
		resolver:  resolver,
		channels:  channels,
		clock:     clk,
		logger:    logger,
	}
}

// step holds the state of one row as it moves through the machine
type step struct {
	row   types.ProfileRow
	state State
	text  string
	draft types.Draft
}

func (s *step) advance(next State) {
	s.state = next
}

// Process runs the row. Row-level problems come back as Skipped or Failed
// outcomes with a nil error. A non-nil error means the session is gone.
func (p *ProfileInteraction) Process(ctx context.Context, sess Session, hg HumanGate, row types.ProfileRow) (types.Outcome, error) {
	st := &step{row: row, state: StateInit}

	outcome, err := p.run(ctx, sess, hg, st)
	if err != nil {
		return types.FailedOutcome(reasonFor(err), err.Error(), st.draft), err
	}
	p.logger.Debugf("row %d ended in state %s: %s %s", row.Index, st.state, outcome.Status, outcome.Reason)
	return outcome, nil
}

func (p *ProfileInteraction) run(ctx context.Context, sess Session, hg HumanGate, st *step) (types.Outcome, error) {
	composer := p.cfg.Composer
	navTimeout := float64(p.cfg.Browser.Timeout / time.Millisecond)

	// Init -> Navigated
	if err := sess.Navigate(st.row.ProfileURL, browser.NavigateOptions{WaitUntil: "domcontentloaded", Timeout: navTimeout}); err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, err
		}
		return types.FailedOutcome(types.ReasonNavigation, fmt.Errorf("%w: %v", ErrNavigation, err).Error(), st.draft), nil
	}
	st.advance(StateNavigated)
	if err := p.pause(ctx, composer.NavigationPause); err != nil {
		return types.Outcome{}, err
	}

	// Navigated -> ContentExtracted; empty text is passed on
	text, err := sess.ExtractContent(browser.ExtractOptions{Region: composer.ContentRegion})
	if err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, err
		}
		p.logger.Warnf("row %d: content extraction failed, continuing with empty text: %v", st.row.Index, err)
		text = ""
	}
	st.text = text
	st.advance(StateContentExtracted)

	// ContentExtracted -> MessageGenerated
	draft, err := p.generator.Generate(ctx, st.text, p.cfg.Run.Instructions)
	if err != nil {
		return types.FailedOutcome(types.ReasonGeneration, fmt.Errorf("%w: %v", ErrGeneration, err).Error(), st.draft), nil
	}
	st.draft = draft
	st.advance(StateMessageGenerated)

	// MessageGenerated -> ContactResolved
	messagingID, err := p.resolver.ResolveMessagingID(ctx, sess)
	if err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, err
		}
		return types.FailedOutcome(types.ReasonResolution, fmt.Sprintf("%s: %v", MsgResolutionFailed, err), st.draft), nil
	}
	if messagingID == "" {
		return types.FailedOutcome(types.ReasonResolution, MsgResolutionFailed, st.draft), nil
	}
	st.advance(StateContactResolved)

	// ContactResolved -> Composed
	if outcome, done, err := p.compose(ctx, sess, st, messagingID, navTimeout); done || err != nil {
		return outcome, err
	}
	st.advance(StateComposed)

	// Composed -> (GateWait) -> SendEligible
	if hg != nil {
		if outcome, done, err := p.awaitGate(ctx, hg, st); done || err != nil {
			return outcome, err
		}
	}
	st.advance(StateSendEligible)

	// SendEligible -> Sent
	return p.send(sess, st)
}

// compose opens the composer, settles the channel and enters the draft.
// done reports that the row already reached a terminal outcome.
func (p *ProfileInteraction) compose(ctx context.Context, sess Session, st *step, messagingID string, navTimeout float64) (types.Outcome, bool, error) {
	composer := p.cfg.Composer

	if err := sess.Navigate(p.cfg.ComposerURLFor(messagingID), browser.NavigateOptions{WaitUntil: "domcontentloaded", Timeout: navTimeout}); err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, true, err
		}
		return types.FailedOutcome(types.ReasonNavigation, fmt.Errorf("%w: composer: %v", ErrNavigation, err).Error(), st.draft), true, nil
	}
	if err := p.pause(ctx, composer.ComposePause); err != nil {
		return types.Outcome{}, true, err
	}

	channel, err := p.channels.Select(sess, st.row)
	if err != nil {
		if errors.Is(err, contact.ErrNoAddress) {
			return types.SkippedOutcome(types.ReasonNoRecipientChannel, MsgNoRecipientChannel, st.draft), true, nil
		}
		if browser.IsSessionLost(err) {
			return types.Outcome{}, true, err
		}
		return types.FailedOutcome(types.ReasonUIState, fmt.Errorf("%w: channel: %v", ErrUIState, err).Error(), st.draft), true, nil
	}
	p.logger.Debugf("row %d: composing on %s channel", st.row.Index, channel)

	if st.draft.Subject != "" && composer.SubjectSelector != "" {
		present, err := sess.Exists(composer.SubjectSelector)
		if err != nil {
			return p.uiFailure(st, "subject", err)
		}
		if present {
			if err := sess.Fill(browser.FillOptions{Selector: composer.SubjectSelector, Value: st.draft.Subject}); err != nil {
				return p.uiFailure(st, "subject", err)
			}
		} else {
			p.logger.Warnf("row %d: subject field not found, sending without subject", st.row.Index)
		}
	}

	present, err := sess.Exists(composer.BodySelector)
	if err != nil {
		return p.uiFailure(st, "body", err)
	}
	if !present {
		return types.FailedOutcome(types.ReasonUIState, fmt.Sprintf("%v: message editor not found", ErrUIState), st.draft), true, nil
	}

	err = sess.Type(browser.TypeOptions{
		Selector:  composer.BodySelector,
		Text:      st.draft.Body,
		ChunkSize: composer.ChunkSize,
		Pause: func() error {
			return p.pause(ctx, composer.KeystrokePause)
		},
	})
	if err != nil {
		return p.uiFailure(st, "body", err)
	}
	return types.Outcome{}, false, nil
}

func (p *ProfileInteraction) uiFailure(st *step, field string, err error) (types.Outcome, bool, error) {
	if browser.IsSessionLost(err) {
		return types.Outcome{}, true, err
	}
	return types.FailedOutcome(types.ReasonUIState, fmt.Sprintf("%v: %s: %v", ErrUIState, field, err), st.draft), true, nil
}

func (p *ProfileInteraction) awaitGate(ctx context.Context, hg HumanGate, st *step) (types.Outcome, bool, error) {
	result, err := hg.Await(ctx, p.cfg.Gate.Timeout)
	if err != nil {
		// a cancelled wait ends the batch like a lost session
		if ctx.Err() != nil || browser.IsSessionLost(err) {
			return types.Outcome{}, true, fmt.Errorf("%w: gate: %w", ErrSession, err)
		}
		return types.FailedOutcome(types.ReasonUIState, fmt.Sprintf("%v: gate: %v", ErrUIState, err), st.draft), true, nil
	}

	switch result {
	case gate.Confirm:
		return types.Outcome{}, false, nil
	case gate.Skip:
		return types.SkippedOutcome(types.ReasonUserSkipped, MsgSkippedByOperator, st.draft), true, nil
	case gate.Timeout:
		return types.FailedOutcome(types.ReasonTimeout, MsgTimeout, st.draft), true, nil
	default:
		return types.FailedOutcome(types.ReasonUnrecognizedKey, MsgUnrecognizedKey, st.draft), true, nil
	}
}

func (p *ProfileInteraction) send(sess Session, st *step) (types.Outcome, error) {
	selector := p.cfg.Composer.SendSelector

	disabled, err := sess.IsDisabled(selector)
	if err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, err
		}
		return types.FailedOutcome(types.ReasonUIState, fmt.Sprintf("%v: send control: %v", ErrUIState, err), st.draft), nil
	}
	if disabled {
		return types.FailedOutcome(types.ReasonSendControlDisabled, MsgSendControlDisabled, st.draft), nil
	}

	if err := sess.Click(browser.ClickOptions{Selector: selector}); err != nil {
		if browser.IsSessionLost(err) {
			return types.Outcome{}, err
		}
		return types.FailedOutcome(types.ReasonUIState, fmt.Sprintf("%v: send: %v", ErrUIState, err), st.draft), nil
	}

	st.advance(StateSent)
	p.logger.Infof("row %d: sent to %s", st.row.Index, st.row.DisplayName())
	return types.SentOutcome(st.draft), nil
}

func (p *ProfileInteraction) pause(ctx context.Context, r config.Range) error {
	return p.clock.Sleep(ctx, clock.Jitter(r.Min, r.Max))
}
