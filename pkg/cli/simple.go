package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
	"github.com/m-mizutani/chatterbox/pkg/usecase/simple"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const simpleHelp = `Simple mode:
  /mute          toggle audio (muted by default)
  /speak <i>     read message i aloud
  /copy <i>      copy message i
  /regen [i]     re-generate the whole response to message i (last by default)
  /clear         clear the chat
  /exit          leave simple mode`

func simpleCommand() *cli.Command {
	var cfg config
	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "simple",
		Usage: "Reduced chat with audio muted by default",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rl, err := newReadline("» ", &cfg)
			if err != nil {
				return err
			}
			defer rl.Close()

			ctx, a, err := setup(ctx, c, &cfg, rl.Stdout())
			if err != nil {
				return err
			}
			defer a.Close()

			a.welcome(ctx)
			return runSimple(ctx, a, rl)
		},
	}
}

// runSimple shows the current session without action hints until /exit
func runSimple(ctx context.Context, a *app, rl *readline.Instance) error {
	ctx = logging.Component(ctx, "simple")
	w := rl.Stdout()
	opts := []render.Option{
		render.WithTheme(a.renderer.Theme()),
		render.WithParser(a.parser),
		render.WithImages(a.renderer.Images()),
		render.WithRenderNotifier(a.notifier),
		render.WithoutHints(),
	}
	if a.cfg.plain {
		opts = append(opts, render.WithPlain())
	}
	view := render.New(w, opts...)

	mode := simple.New(simple.NewInput{
		Store:     a.store,
		Memory:    a.memory,
		Completer: a.completer,
		Images:    a.images,
		View:      view,
		Voice:     a.synth,
		Clipboard: a.clipboard,
		Notifier:  a.notifier,
	})
	mode.Open(ctx)
	defer mode.Close()
	fmt.Fprintln(w, "Simple mode. Audio is muted, /mute to toggle, /help for commands.")

	for {
		rl.SetPrompt("» ")
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			_, err := mode.Send(ctx, line)
			a.report(ctx, err)
			continue
		}

		quit, err := simpleAction(ctx, a, mode, w, line)
		a.report(ctx, err)
		if quit {
			return nil
		}
	}
}

func simpleAction(ctx context.Context, a *app, mode *simple.Mode, w io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	index := func() (int, error) {
		if len(args) > 0 {
			return parseIndex(args[0])
		}
		return len(a.store.CurrentSession(ctx).Messages) - 1, nil
	}

	switch name {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(w, simpleHelp)
	case "/mute":
		if mode.ToggleMute() {
			a.notifier.Notify(ctx, "Audio muted")
		} else {
			a.notifier.Notify(ctx, "Audio unmuted")
		}
	case "/clear":
		return false, mode.Clear(ctx)
	case "/speak", "/copy", "/regen":
		i, err := index()
		if err != nil {
			return false, err
		}
		switch name {
		case "/speak":
			return false, mode.Speak(ctx, i)
		case "/copy":
			return false, mode.Copy(ctx, i)
		default:
			_, err := mode.Regenerate(ctx, i)
			return false, err
		}
	default:
		return false, goerr.New("unknown command, try /help", goerr.V("command", name))
	}
	return false, nil
}
