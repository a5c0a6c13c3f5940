package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/screensaver"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const screensaverHelp = `Screensaver:
  p              pause or resume
  s              save the current image
  c              copy the current image
  h              hide or show controls and thumbnails
  f              toggle fullscreen
  a              toggle automatic prompts
  t <prompt>     use a prompt of your own
  1-12           show a history thumbnail
  l              list history
  set <timer|aspect|model|enhance|private> <value>
  q              stop the screensaver`

type screensaverOptions struct {
	prompt string
	timer  int64
	aspect string
	model  string
}

func screensaverCommand() *cli.Command {
	var (
		cfg  config
		opts screensaverOptions
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Initial prompt (generated when empty)",
			Destination: &opts.prompt,
		},
		&cli.IntFlag{
			Name:        "timer",
			Usage:       "Seconds between images",
			Destination: &opts.timer,
		},
		&cli.StringFlag{
			Name:        "aspect",
			Usage:       "widescreen, square or portrait",
			Destination: &opts.aspect,
		},
		&cli.StringFlag{
			Name:        "image-model",
			Usage:       "Image generation model",
			Destination: &opts.model,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "screensaver",
		Usage: "Slideshow of generated images",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rl, err := newReadline("screensaver> ", &cfg)
			if err != nil {
				return err
			}
			defer rl.Close()

			ctx, a, err := setup(ctx, c, &cfg, rl.Stdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return runScreensaver(ctx, a, rl, opts)
		},
	}
}

// frameDisplay prints frames in a box followed by the history thumbnails
type frameDisplay struct {
	mu    sync.Mutex
	w     io.Writer
	saver *screensaver.Screensaver
	box   lipgloss.Style
	thumb lipgloss.Style
}

func newFrameDisplay(w io.Writer, plain bool) *frameDisplay {
	d := &frameDisplay{w: w}
	if !plain {
		d.box = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("99")).Padding(0, 1)
		d.thumb = lipgloss.NewStyle().Faint(true)
	}
	return d
}

func (d *frameDisplay) ShowFrame(ctx context.Context, frame screensaver.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.saver.Status()
	if st.Fullscreen {
		fmt.Fprint(d.w, "\033[2J\033[H")
	}

	body := fmt.Sprintf("🖼  %s\n%s", frame.Prompt, frame.URL)
	if frame.Fallback {
		body = fmt.Sprintf("🖼  %s (failed to load)\n%s", frame.Prompt, frame.URL)
	}
	fmt.Fprintln(d.w, d.box.Render(body))

	if st.ControlsHidden {
		return
	}
	d.writeHistory(st.History)
}

func (d *frameDisplay) writeHistory(history []screensaver.Entry) {
	for i, e := range history {
		fmt.Fprintln(d.w, d.thumb.Render(fmt.Sprintf("  %2d. %s", i+1, e.Prompt)))
	}
}

// runScreensaver starts the screensaver and handles keys until q
func runScreensaver(ctx context.Context, a *app, rl *readline.Instance, opts screensaverOptions) error {
	ctx = logging.Component(ctx, "screensaver")
	w := rl.Stdout()
	display := newFrameDisplay(w, a.cfg.plain)
	saver := screensaver.New(ctx, screensaver.NewInput{
		Store:     a.store,
		Completer: a.completer,
		Loader:    a.loader,
		Images:    a.images,
		Clipboard: a.clipboard,
		Storage:   a.storage,
		Notifier:  a.notifier,
		Display:   display,
		Speech:    a.synth,
	})
	display.saver = saver

	saver.UpdateSettings(ctx, func(s *model.ScreensaverSettings) {
		if opts.prompt != "" {
			s.Prompt = opts.prompt
		}
		if opts.timer > 0 {
			s.Timer = int(opts.timer)
		}
		if opts.aspect != "" {
			s.Aspect = model.Aspect(opts.aspect)
		}
		if opts.model != "" {
			s.Model = opts.model
		}
	})

	if err := saver.Start(ctx, lastUserMessage(ctx, a)); err != nil {
		return err
	}
	defer saver.Stop(ctx)
	a.notifier.Notify(ctx, "Screensaver started. Type ? for keys, q to stop.")

	rl.SetPrompt("screensaver> ")
	defer rl.SetPrompt("> ")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}
		quit, err := screensaverKey(ctx, saver, display, w, strings.TrimSpace(line))
		if err != nil && !errors.Is(err, model.ErrNotRunning) && !errors.Is(err, model.ErrNotReady) {
			a.report(ctx, err)
		}
		if quit {
			return nil
		}
	}
}

func screensaverKey(ctx context.Context, saver *screensaver.Screensaver, display *frameDisplay, w io.Writer, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	fields := strings.Fields(line)

	switch fields[0] {
	case "q", "quit", "exit":
		return true, nil
	case "?", "help":
		fmt.Fprintln(w, screensaverHelp)
	case "p":
		_, err := saver.TogglePause(ctx)
		return false, err
	case "s":
		_, err := saver.SaveCurrent(ctx)
		return false, err
	case "c":
		return false, saver.CopyCurrent(ctx)
	case "h":
		_, err := saver.ToggleControls(ctx)
		return false, err
	case "f":
		_, err := saver.ToggleFullscreen(ctx)
		return false, err
	case "a":
		saver.ToggleAutoPrompt(ctx)
	case "t":
		prompt := strings.TrimSpace(strings.TrimPrefix(line, "t"))
		if prompt == "" {
			return false, goerr.New("usage: t <prompt>")
		}
		saver.SetPrompt(ctx, prompt)
	case "l":
		display.mu.Lock()
		display.writeHistory(saver.Status().History)
		display.mu.Unlock()
	case "set":
		if len(fields) < 3 {
			return false, goerr.New("usage: set <timer|aspect|model|enhance|private> <value>")
		}
		return false, screensaverSetting(ctx, saver, fields[1], fields[2])
	default:
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return false, goerr.New("unknown key, type ? for help", goerr.V("key", fields[0]))
		}
		_, err = saver.ShowHistory(ctx, n-1)
		return false, err
	}
	return false, nil
}

func screensaverSetting(ctx context.Context, saver *screensaver.Screensaver, key, value string) error {
	var apply func(*model.ScreensaverSettings)
	switch key {
	case "timer":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return goerr.New("timer must be a positive number of seconds", goerr.V("value", value))
		}
		apply = func(s *model.ScreensaverSettings) { s.Timer = n }
	case "aspect":
		aspect := model.Aspect(value)
		if aspect != model.AspectWidescreen && aspect != model.AspectSquare && aspect != model.AspectPortrait {
			return goerr.New("aspect must be widescreen, square or portrait", goerr.V("value", value))
		}
		apply = func(s *model.ScreensaverSettings) { s.Aspect = aspect }
	case "model":
		apply = func(s *model.ScreensaverSettings) { s.Model = value }
	case "enhance", "private":
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		if key == "enhance" {
			apply = func(s *model.ScreensaverSettings) { s.Enhance = on }
		} else {
			apply = func(s *model.ScreensaverSettings) { s.Private = on }
		}
	default:
		return goerr.New("unknown setting", goerr.V("key", key))
	}
	saver.UpdateSettings(ctx, apply)
	return nil
}

func lastUserMessage(ctx context.Context, a *app) string {
	msgs := a.store.CurrentSession(ctx).Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
