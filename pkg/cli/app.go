package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/usecase/chat"
	"github.com/m-mizutani/chatterbox/pkg/usecase/memory"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
	"github.com/m-mizutani/chatterbox/pkg/usecase/speech"
	"github.com/m-mizutani/chatterbox/pkg/usecase/store"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const registerTimeout = 10 * time.Second

// app bundles every component a command may need
type app struct {
	cfg *config
	w   io.Writer

	repo      repository.Repository
	store     *store.Store
	memory    *memory.Facade
	notifier  interfaces.Notifier
	completer interfaces.Completer
	models    *adapter.Pollinations
	images    *adapter.ImageURLBuilder
	parser    *model.ContentParser
	loader    interfaces.ImageLoader
	storage   interfaces.Storage
	clipboard interfaces.Clipboard
	opener    interfaces.Opener
	stats     *adapter.Stats

	renderer *render.Renderer
	actions  *render.Actions
	chat     *chat.Controller
	synth    *speech.Synthesizer
	voices   *adapter.CommandSynth
	listener *speech.Listener
}

// setup reads the config file, attaches a logger to ctx and builds the app. Output goes
// to w, logs to the root error writer.
func setup(ctx context.Context, c *cli.Command, cfg *config, w io.Writer) (context.Context, *app, error) {
	if err := cfg.loadFile(c); err != nil {
		return ctx, nil, err
	}
	logger := cfg.newLogger(c.Root().ErrWriter)
	ctx = logging.With(ctx, logger)

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return ctx, nil, err
	}

	a := &app{
		cfg:       cfg,
		w:         w,
		repo:      repo,
		notifier:  adapter.NewTerminalNotifier(w),
		models:    cfg.newPollinations(),
		images:    adapter.NewImageURLBuilder(cfg.imageEndpoint),
		loader:    adapter.NewHTTPImageLoader(nil),
		clipboard: adapter.SystemClipboard{},
		opener:    adapter.BrowserOpener{},
	}
	a.parser = model.NewContentParser(a.images.Prefix())

	a.store, err = store.New(ctx, repo, store.WithNotifier(a.notifier))
	if err != nil {
		_ = repo.Close()
		return ctx, nil, goerr.Wrap(err, "failed to load state")
	}
	a.memory = memory.New(a.store)
	a.stats = adapter.NewStats(cfg.apiEndpoint, adapter.WithVisitorCache(a.store))

	if a.completer, err = cfg.newCompleter(ctx); err != nil {
		_ = repo.Close()
		return ctx, nil, err
	}
	if a.storage, err = cfg.newStorage(ctx); err != nil {
		_ = repo.Close()
		return ctx, nil, err
	}

	// keep a nil *CommandSynth out of the interface
	var engine interfaces.SpeechEngine
	if a.voices = cfg.newSpeechEngine(ctx); a.voices != nil {
		engine = a.voices
	}
	a.synth = speech.NewSynthesizer(engine, a.store, speech.WithNotifier(a.notifier))

	var transcriber interfaces.Transcriber
	if rec := cfg.newTranscriber(ctx); rec != nil {
		transcriber = rec
	}
	a.listener = speech.NewListener(transcriber, a.notifier)

	theme := cfg.theme
	if theme == "" {
		theme = a.store.Theme(ctx)
	}
	opts := []render.Option{
		render.WithTheme(theme),
		render.WithParser(a.parser),
		render.WithImages(render.NewImages(a.loader)),
		render.WithRenderNotifier(a.notifier),
	}
	if cfg.plain {
		opts = append(opts, render.WithPlain())
	}
	a.renderer = render.New(w, opts...)

	a.actions = render.NewActions(render.ActionsInput{
		Store:     a.store,
		Images:    a.renderer.Images(),
		Loader:    a.loader,
		Parser:    a.parser,
		Clipboard: a.clipboard,
		Storage:   a.storage,
		Opener:    a.opener,
		Speaker:   a.synth,
		Notifier:  a.notifier,
	})

	a.chat = chat.New(chat.NewInput{
		Store:     a.store,
		Memory:    a.memory,
		Completer: a.completer,
		Images:    a.images,
		Speaker:   a.synth,
		View:      a.renderer,
		Notifier:  a.notifier,
	})

	logger.Debug("app ready",
		"backend", cfg.backend,
		"llm", cfg.llm,
		"speech", a.synth.Available(),
		"recognition", a.listener.Available(),
	)
	return ctx, a, nil
}

func (a *app) Close() {
	a.listener.Stop()
	a.synth.Stop()
	if err := a.repo.Close(); err != nil {
		logging.Default().Warn("failed to close repository", "error", err)
	}
}

// welcome greets a first launch, seeds config file defaults and makes sure the user is
// registered
func (a *app) welcome(ctx context.Context) {
	if a.store.IsFirstLaunch(ctx) {
		if !a.cfg.personalization.IsEmpty() {
			a.store.SetPersonalization(ctx, a.cfg.personalization)
			a.memory.SetPersonalization(ctx, a.cfg.personalization)
		}
		if a.cfg.screensaver != nil {
			a.store.SaveScreensaverSettings(ctx, *a.cfg.screensaver)
		}
		a.renderer.Notice(ctx, "Welcome to chatterbox! Type /help to see what you can do.")
		a.store.MarkLaunched(ctx)
	}

	// a generated id is kept locally even when the API is unreachable
	id := a.store.UserID(ctx)
	if id == "" {
		id = model.NewUserID()
		a.store.SetUserID(ctx, id)
	}
	go a.register(context.WithoutCancel(ctx), id)
}

func (a *app) register(ctx context.Context, id model.UserID) {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	status, err := a.stats.RegisterUser(ctx, id)
	if err != nil {
		logging.From(ctx).Debug("user registration failed, keeping local id", "user_id", id, "error", err)
		return
	}
	logging.From(ctx).Debug("user registered", "user_id", id, "status", status)
}

// report prints a failed action. Superseded operations are silent.
func (a *app) report(ctx context.Context, err error) {
	if err == nil || errors.Is(err, model.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	logging.From(ctx).Debug("action failed", "error", err)
	a.notifier.Notify(ctx, fmt.Sprintf("Error: %v", err))
}
