// Package gate pauses automation before a send until an operator presses a key
// in the browser window.
//
// Install exposes a Go binding to the page and registers an init script, so a
// keydown listener exists in every document the session loads. The listener
// only reports a key while the gate is armed; Await arms it, waits for the
// binding to fire, and disarms it again. Nothing polls the page.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/logging"
)

// Result is the operator's decision at the gate.
type Result string

const (
	Confirm      Result = "confirm"
	Skip         Result = "skip"
	Unrecognized Result = "unrecognized"
	Timeout      Result = "timeout"
)

const (
	bindingName = "__inreachGateSignal"
	armedFlag   = "__inreachGateArmed"

	// DefaultProbeInterval is how often Await checks the page is still alive
	DefaultProbeInterval = 5 * time.Second
)

// listenerScript runs before page scripts in every document. The capture-phase
// listener swallows the key so the composer never receives it.
var listenerScript = fmt.Sprintf(`(() => {
  if (window.__inreachGateInstalled) return;
  window.__inreachGateInstalled = true;
  document.addEventListener('keydown', (event) => {
    if (!window.%[1]s) return;
    window.%[1]s = false;
    event.preventDefault();
    event.stopPropagation();
    window.%[2]s(event.key);
  }, true);
})();`, armedFlag, bindingName)

// Options configures a KeyGate.
type Options struct {
	ConfirmKey    string
	SkipKey       string
	ProbeInterval time.Duration
	Logger        *logging.Logger
}

// KeyGate is a per-session human confirmation checkpoint.
type KeyGate struct {
	page          browser.Scriptable
	confirmKey    string
	skipKey       string
	probeInterval time.Duration
	signals       chan string
	logger        *logging.Logger
}

// Install wires the key listener into page. Call it once per session, before
// the first navigation.
func Install(page browser.Scriptable, opts Options) (*KeyGate, error) {
	if opts.ConfirmKey == "" {
		opts.ConfirmKey = "Enter"
	}
	if opts.SkipKey == "" {
		opts.SkipKey = "Backspace"
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	g := &KeyGate{
		page:          page,
		confirmKey:    opts.ConfirmKey,
		skipKey:       opts.SkipKey,
		probeInterval: opts.ProbeInterval,
		signals:       make(chan string, 8),
		logger:        opts.Logger,
	}

	if err := page.ExposeFunction(bindingName, g.receive); err != nil {
		return nil, fmt.Errorf("failed to expose gate binding: %w", err)
	}
	if err := page.AddInitScript(listenerScript); err != nil {
		return nil, fmt.Errorf("failed to register gate listener: %w", err)
	}
	// the current document predates the init script
	if _, err := page.Evaluate(listenerScript); err != nil {
		return nil, fmt.Errorf("failed to install gate listener: %w", err)
	}
	return g, nil
}

// receive is called from the page. It never blocks the driver.
func (g *KeyGate) receive(args ...interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	key := fmt.Sprint(args[0])
	select {
	case g.signals <- key:
	default:
		g.logger.Warnf("gate signal dropped: %q", key)
	}
	return nil
}

// Await blocks until the operator presses a key or timeout elapses. Signals
// left over from earlier rows are discarded first. The only errors are
// context cancellation and a page that can no longer be scripted.
func (g *KeyGate) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	g.drain()

	if _, err := g.page.Evaluate(fmt.Sprintf("() => { window.%s = true; }", armedFlag)); err != nil {
		return "", fmt.Errorf("failed to arm gate: %w", err)
	}
	defer g.disarm()

	g.logger.Infof("waiting up to %s for %s (send) or %s (skip)", timeout, g.confirmKey, g.skipKey)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	probe := time.NewTicker(g.probeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-timer.C:
			g.logger.Warnf("no gate signal within %s", timeout)
			return Timeout, nil

		case key := <-g.signals:
			result := g.classify(key)
			g.logger.Infof("gate key %q: %s", key, result)
			return result, nil

		case <-probe.C:
			if _, err := g.page.Evaluate("() => true"); err != nil {
				return "", fmt.Errorf("page lost while waiting at gate: %w", err)
			}
		}
	}
}

func (g *KeyGate) classify(key string) Result {
	switch key {
	case g.confirmKey:
		return Confirm
	case g.skipKey:
		return Skip
	default:
		return Unrecognized
	}
}

func (g *KeyGate) drain() {
	for {
		select {
		case key := <-g.signals:
			g.logger.Debugf("discarding stale gate signal %q", key)
		default:
			return
		}
	}
}

func (g *KeyGate) disarm() {
	_, _ = g.page.Evaluate(fmt.Sprintf("() => { window.%s = false; }", armedFlag))
}
