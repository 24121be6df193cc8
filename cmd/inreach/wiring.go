package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/contact"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/generator"
	"github.com/entrhq/inreach/pkg/ledger"
	"github.com/entrhq/inreach/pkg/llm/openai"
	"github.com/entrhq/inreach/pkg/llm/tokenizer"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/outreach"
	"github.com/entrhq/inreach/pkg/ratelimit"
)

// sessionFactory opens one browser session per batch
type sessionFactory struct {
	manager *browser.SessionManager
}

func (f *sessionFactory) Open(ctx context.Context) (outreach.Session, error) {
	sess, err := f.manager.Open(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func browserOptions(cfg *config.Config) browser.SessionOptions {
	return browser.SessionOptions{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		Viewport: &browser.Viewport{
			Width:  cfg.Browser.ViewportWidth,
			Height: cfg.Browser.ViewportHeight,
		},
		Timeout:     float64(cfg.Browser.Timeout / time.Millisecond),
		Args:        cfg.Browser.Args,
		AllowedURLs: cfg.Browser.AllowedURLs,
	}
}

func gateFactory(cfg *config.Config, logger *logging.Logger) outreach.GateFactory {
	return func(sess outreach.Session) (outreach.HumanGate, error) {
		g, err := gate.Install(sess, gate.Options{
			ConfirmKey: cfg.Gate.ConfirmKey,
			SkipKey:    cfg.Gate.SkipKey,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}

func channelSelectors(cfg *config.Config) contact.Selectors {
	return contact.Selectors{
		EmailMode:     cfg.Composer.EmailModeSelector,
		ChannelToggle: cfg.Composer.ChannelToggleSelector,
		NoAddress:     cfg.Composer.NoAddressSelector,
		Recipient:     cfg.Composer.RecipientSelector,
	}
}

// newProvider builds the completion client from the llm config section
func newProvider(cfg *config.Config) (*openai.Provider, error) {
	opts := []openai.ProviderOption{
		openai.WithModel(cfg.LLM.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Temperature != nil {
		opts = append(opts, openai.WithTemperature(*cfg.LLM.Temperature))
	}

	provider, err := openai.NewProvider(cfg.LLM.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}

func newGenerator(cfg *config.Config, logger *logging.Logger) (*generator.Generator, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("using model %s at %s", provider.GetModel(), provider.GetBaseURL())

	genOpts := []generator.Option{generator.WithLogger(logger)}
	if cfg.Composer.FixedSubject != "" {
		genOpts = append(genOpts, generator.WithFixedSubject(cfg.Composer.FixedSubject))
	}
	if cfg.LLM.MaxInputTokens > 0 {
		tok, err := tokenizer.New()
		if err != nil {
			// without the encoding the page text is sent as is
			logger.Warnf("token budgeting disabled: %v", err)
		} else {
			genOpts = append(genOpts, generator.WithTokenizer(tok, cfg.LLM.MaxInputTokens))
		}
	}
	return generator.New(provider, genOpts...), nil
}

// engine bundles everything a run needs so it can be torn down in one place
type engine struct {
	controller *outreach.Controller
	store      *ledger.Store
	browsers   *browser.SessionManager
}

func (e *engine) Close(logger *logging.Logger) {
	if err := e.browsers.Shutdown(); err != nil {
		logger.Warnf("browser shutdown: %v", err)
	}
	if err := e.store.Close(); err != nil {
		logger.Warnf("ledger close: %v", err)
	}
}

func newEngine(cfg *config.Config, logger *logging.Logger, opts ...outreach.Option) (*engine, error) {
	gen, err := newGenerator(cfg, logger.With("generator"))
	if err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", cfg.Ledger.Path, err)
	}

	limiter, err := ratelimit.New(store, cfg.Run.DailyLimit, clock.Real{})
	if err != nil {
		store.Close()
		return nil, err
	}

	browsers, err := browser.NewSessionManager(browserOptions(cfg))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create browser manager: %w", err)
	}
	if err := browsers.Initialize(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to start browser driver: %w", err)
	}

	interaction := outreach.NewProfileInteraction(cfg, gen,
		contact.NewResolver(),
		contact.NewChannelSelector(channelSelectors(cfg)),
		clock.Real{},
		logger.With("interaction"),
	)

	controller, err := outreach.NewController(cfg, outreach.Dependencies{
		Ledger:     store,
		Limiter:    limiter,
		Sessions:   &sessionFactory{manager: browsers},
		Interactor: interaction,
		Gates:      gateFactory(cfg, logger.With("gate")),
		Clock:      clock.Real{},
		Logger:     logger.With("controller"),
	}, opts...)
	if err != nil {
		browsers.Shutdown()
		store.Close()
		return nil, err
	}

	return &engine{controller: controller, store: store, browsers: browsers}, nil
}
