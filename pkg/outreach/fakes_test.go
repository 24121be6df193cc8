package outreach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/contact"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/ledger"
	"github.com/entrhq/inreach/pkg/ratelimit"
	"github.com/entrhq/inreach/pkg/types"
)

// epoch is a Monday morning well away from midnight
var epoch = time.Date(2024, 3, 4, 9, 30, 0, 0, time.Local)

var testSelectors = contact.Selectors{
	EmailMode:     "#email-mode",
	ChannelToggle: "#to-email",
	NoAddress:     "#no-address",
	Recipient:     "#recipient",
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Run.BatchSize = 2
	cfg.Run.MaxRetries = 2
	cfg.Run.RetryBackoff = time.Second
	cfg.Run.DailyLimit = 10
	cfg.Run.Instructions = "keep it short"
	cfg.Composer.ComposerURL = "https://example.com/messaging/compose?recipient={id}"
	cfg.Composer.SubjectSelector = "#subject"
	cfg.Composer.BodySelector = "#body"
	cfg.Composer.SendSelector = "#send"
	cfg.Composer.EmailModeSelector = testSelectors.EmailMode
	cfg.Composer.ChannelToggleSelector = testSelectors.ChannelToggle
	cfg.Composer.NoAddressSelector = testSelectors.NoAddress
	cfg.Composer.RecipientSelector = testSelectors.Recipient
	cfg.Gate.Timeout = time.Second
	cfg.Artifacts.Enabled = false
	return cfg
}

const profileHTML = `<html><body><main>Jane Doe builds things</main>
<code>{"data":{"data":{"identityDashProfilesByMemberIdentity":{"*elements":["urn:li:fsd_profile:ACoAAB123"]}}}}</code>
</body></html>`

// fakePage is an in-memory Session. present lists the selectors that exist
// on every page; the composer selectors are always there unless removed.
type fakePage struct {
	mu sync.Mutex

	html     string
	present  map[string]bool
	disabled bool

	navErr   map[string]error
	existErr map[string]error
	lost     bool
	closed   bool
	resets   int
	visited  []string
	clicked  []string
	filled   map[string]string
	typed    []string
	bindings map[string]func(args ...interface{}) interface{}
}

func newFakePage() *fakePage {
	return &fakePage{
		html:     profileHTML,
		present:  map[string]bool{"#subject": true, "#body": true, "#send": true},
		navErr:   map[string]error{},
		filled:   map[string]string{},
		bindings: map[string]func(args ...interface{}) interface{}{},
	}
}

var errTargetClosed = errors.New("target closed")

func (p *fakePage) check() error {
	if p.lost {
		return errors.Join(browser.ErrSessionLost, errTargetClosed)
	}
	return nil
}

func (p *fakePage) Navigate(url string, _ browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.visited = append(p.visited, url)
	return p.navErr[url]
}

func (p *fakePage) ExtractContent(browser.ExtractOptions) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return "Jane Doe builds things", nil
}

func (p *fakePage) HTML() (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return p.html, nil
}

func (p *fakePage) Exists(selector string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	if err := p.existErr[selector]; err != nil {
		return false, err
	}
	return p.present[selector], nil
}

func (p *fakePage) Click(opts browser.ClickOptions) error {
	if err := p.check(); err != nil {
		return err
	}
	p.clicked = append(p.clicked, opts.Selector)
	return nil
}

func (p *fakePage) Fill(opts browser.FillOptions) error {
	if err := p.check(); err != nil {
		return err
	}
	p.filled[opts.Selector] = opts.Value
	return nil
}

func (p *fakePage) Type(opts browser.TypeOptions) error {
	if err := p.check(); err != nil {
		return err
	}
	p.typed = append(p.typed, opts.Text)
	if opts.Pause != nil {
		return opts.Pause()
	}
	return nil
}

func (p *fakePage) IsDisabled(string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	return p.disabled, nil
}

func (p *fakePage) Reset() error {
	if err := p.check(); err != nil {
		return err
	}
	p.resets++
	return nil
}

func (p *fakePage) URL() string { return "" }

func (p *fakePage) ExposeFunction(name string, fn func(args ...interface{}) interface{}) error {
	p.bindings[name] = fn
	return nil
}

func (p *fakePage) AddInitScript(string) error { return nil }

func (p *fakePage) Evaluate(string, ...interface{}) (interface{}, error) {
	return nil, p.check()
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) sent() bool {
	for _, sel := range p.clicked {
		if sel == "#send" {
			return true
		}
	}
	return false
}

var _ Session = (*fakePage)(nil)

// fakeFactory hands out fresh pages and remembers them
type fakeFactory struct {
	mu      sync.Mutex
	pages   []*fakePage
	openErr error
	setup   func(p *fakePage)
}

func (f *fakeFactory) Open(context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	p := newFakePage()
	if f.setup != nil {
		f.setup(p)
	}
	f.pages = append(f.pages, p)
	return p, nil
}

func (f *fakeFactory) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

// interactorFunc adapts a function to Interactor
type interactorFunc func(ctx context.Context, sess Session, hg HumanGate, row types.ProfileRow) (types.Outcome, error)

func (f interactorFunc) Process(ctx context.Context, sess Session, hg HumanGate, row types.ProfileRow) (types.Outcome, error) {
	return f(ctx, sess, hg, row)
}

func alwaysSent() Interactor {
	return interactorFunc(func(context.Context, Session, HumanGate, types.ProfileRow) (types.Outcome, error) {
		return types.SentOutcome(types.Draft{Subject: "hi", Body: "hello"}), nil
	})
}

type stubGenerator struct {
	draft types.Draft
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, rawText, instructions string) (types.Draft, error) {
	g.calls++
	if g.err != nil {
		return types.Draft{}, g.err
	}
	return g.draft, nil
}

// scriptedGate replays results in order, then confirms
type scriptedGate struct {
	results  []gate.Result
	err      error
	timeouts []time.Duration
	onAwait  func()
}

func (g *scriptedGate) Await(_ context.Context, timeout time.Duration) (gate.Result, error) {
	g.timeouts = append(g.timeouts, timeout)
	if g.onAwait != nil {
		g.onAwait()
	}
	if g.err != nil {
		return "", g.err
	}
	if len(g.results) == 0 {
		return gate.Confirm, nil
	}
	r := g.results[0]
	g.results = g.results[1:]
	return r, nil
}

func newInteraction(cfg *config.Config, gen ContentGenerator, clk clock.Clock) *ProfileInteraction {
	return NewProfileInteraction(cfg, gen, contact.NewResolver(), contact.NewChannelSelector(testSelectors), clk, nil)
}

func rows(n int) []types.ProfileRow {
	out := make([]types.ProfileRow, n)
	for i := range out {
		out[i] = types.ProfileRow{
			Index:      i,
			ProfileURL: "https://example.com/in/profile-" + string(rune('a'+i)),
			FirstName:  "Jane",
			LastName:   "Doe",
			Company:    "Acme",
		}
	}
	return out
}

func newLedger(t *testing.T, clk clock.Clock) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(":memory:", ledger.WithNow(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newLimiter(t *testing.T, store *ledger.Store, limit int, clk clock.Clock) *ratelimit.Limiter {
	t.Helper()
	limiter, err := ratelimit.New(store, limit, clk)
	require.NoError(t, err)
	return limiter
}

// recordingLedger wraps a Store and can fail writes on demand
type recordingLedger struct {
	*ledger.Store
	startErr  error
	recordErr error
	ended     []types.RunStatus
}

func (l *recordingLedger) StartRun(ctx context.Context, fileName string) (int64, error) {
	if l.startErr != nil {
		return 0, l.startErr
	}
	return l.Store.StartRun(ctx, fileName)
}

func (l *recordingLedger) RecordEmail(ctx context.Context, rec *types.EmailRecord) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	return l.Store.RecordEmail(ctx, rec)
}

func (l *recordingLedger) EndRun(ctx context.Context, runID int64, status types.RunStatus, errMsg string) error {
	l.ended = append(l.ended, status)
	return l.Store.EndRun(ctx, runID, status, errMsg)
}
