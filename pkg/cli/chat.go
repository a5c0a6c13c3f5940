package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
	"github.com/m-mizutani/chatterbox/pkg/usecase/speech"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const chatHelp = `Commands:
  /new [name]              start a new chat
  /sessions                list chats
  /use <n|id>              switch chat
  /rename <name>           rename the current chat
  /delete [n|id]           delete a chat (current by default)
  /clear                   clear the current chat
  /clearall                delete every chat
  /model [name]            show or set the model of the current chat
  /models                  list available models
  /memory [list|add|remove|edit|clear] ...
  /edit <i> <text>         edit message i
  /regen <i>               regenerate AI message i
  /copy <i>                copy message i
  /speak <i>               read message i aloud
  /stop                    stop speaking
  /voice [list|<name>]     show or pick a voice
  /speed <x> /pitch <x>    voice rate and pitch (0-2)
  /autospeak [on|off]      speak replies automatically
  /theme [name]            show or set the theme
  /image <copy|save|regen|open> <i> [n]
  /dictate                 start or stop dictation
  /voicechat               hands-free conversation
  /personalize <field> <value>  name, interests, traits or info
  /screensaver             image screensaver
  /simple                  simple mode
  /stats                   visitor count
  /exit                    quit`

func chatCommand() *cli.Command {
	var (
		cfg        config
		sessionRef string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Open this session (list position or ID)",
			Sources:     cli.EnvVars("CHATTERBOX_SESSION"),
			Destination: &sessionRef,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runChat(ctx, c, &cfg, sessionRef)
		},
	}
}

func runChat(ctx context.Context, c *cli.Command, cfg *config, sessionRef string) error {
	rl, err := newReadline("> ", cfg)
	if err != nil {
		return err
	}
	defer rl.Close()

	ctx, a, err := setup(ctx, c, cfg, rl.Stdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if sessionRef != "" {
		s, err := a.sessionRef(ctx, sessionRef)
		if err != nil {
			return err
		}
		if err := a.store.SetCurrentSession(ctx, s.ID); err != nil {
			return err
		}
	}

	a.welcome(ctx)
	repl := &chatREPL{app: a, rl: rl, dictation: speech.NewDictation(a.listener)}
	return repl.loop(ctx)
}

func newReadline(prompt string, cfg *config) (*readline.Instance, error) {
	history := ""
	if cfg.backend == "" || cfg.backend == "sqlite" {
		history = filepath.Join(filepath.Dir(cfg.dataPath), "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     history,
		AutoComplete:    chatCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize terminal input")
	}
	return rl, nil
}

func chatCompleter() *readline.PrefixCompleter {
	item := readline.PcItem
	themes := make([]readline.PrefixCompleterInterface, 0, len(render.ThemeNames()))
	for _, t := range render.ThemeNames() {
		themes = append(themes, item(t))
	}
	return readline.NewPrefixCompleter(
		item("/help"), item("/new"), item("/sessions"), item("/use"), item("/rename"),
		item("/delete"), item("/clear"), item("/clearall"), item("/model"), item("/models"),
		item("/memory", item("list"), item("add"), item("remove"), item("edit"), item("clear")),
		item("/edit"), item("/regen"), item("/copy"), item("/speak"), item("/stop"),
		item("/voice", item("list")), item("/speed"), item("/pitch"),
		item("/autospeak", item("on"), item("off")),
		item("/theme", themes...),
		item("/image", item("copy"), item("save"), item("regen"), item("open")),
		item("/dictate"), item("/voicechat"),
		item("/personalize", item("name"), item("interests"), item("traits"), item("info")),
		item("/screensaver"), item("/simple"), item("/stats"), item("/exit"),
	)
}

type chatREPL struct {
	app       *app
	rl        *readline.Instance
	dictation *speech.Dictation
}

func (r *chatREPL) loop(ctx context.Context) error {
	a := r.app
	a.renderer.ShowSession(ctx, a.store.CurrentSession(ctx))

	for {
		line, err := r.readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			a.report(ctx, err)
			if quit {
				return nil
			}
			continue
		}

		r.send(ctx, func(ctx context.Context) error {
			_, err := a.chat.Send(ctx, line)
			return err
		})
	}
}

// readLine prefills the input with finished dictation
func (r *chatREPL) readLine() (string, error) {
	if r.app.listener.Listening() {
		r.rl.SetPrompt("🎙 > ")
		return r.rl.Readline()
	}
	r.rl.SetPrompt("> ")
	if text := r.dictation.Take(); text != "" {
		return r.rl.ReadlineWithDefault(text)
	}
	return r.rl.Readline()
}

// send runs a request that Ctrl-C can abandon
func (r *chatREPL) send(ctx context.Context, fn func(ctx context.Context) error) {
	reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	r.app.report(ctx, fn(reqCtx))
}

func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	a := r.app
	w := r.rl.Stdout()
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, name))

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintln(w, chatHelp)

	case "/new":
		s := a.store.CreateSession(ctx, rest)
		if err := a.store.SetCurrentSession(ctx, s.ID); err != nil {
			return false, err
		}
		a.synth.Stop()
		a.notifier.Notify(ctx, "New chat started")

	case "/sessions":
		a.listSessions(ctx, w)

	case "/use":
		if len(args) == 0 {
			return false, goerr.New("usage: /use <n|id>")
		}
		s, err := a.sessionRef(ctx, args[0])
		if err != nil {
			return false, err
		}
		if err := a.store.SetCurrentSession(ctx, s.ID); err != nil {
			return false, err
		}
		a.synth.Stop()
		a.renderer.ShowSession(ctx, a.store.CurrentSession(ctx))

	case "/rename":
		if rest == "" {
			return false, goerr.New("usage: /rename <name>")
		}
		return false, a.store.RenameSession(ctx, a.store.CurrentSession(ctx).ID, rest)

	case "/delete":
		id := a.store.CurrentSession(ctx).ID
		if len(args) > 0 {
			s, err := a.sessionRef(ctx, args[0])
			if err != nil {
				return false, err
			}
			id = s.ID
		}
		a.store.DeleteSession(ctx, id)
		a.notifier.Notify(ctx, "Chat deleted")
		a.renderer.ShowSession(ctx, a.store.CurrentSession(ctx))

	case "/clear":
		return false, a.chat.ClearChat(ctx)

	case "/clearall":
		a.store.ClearAllSessions(ctx)
		a.synth.Stop()
		a.notifier.Notify(ctx, "All chats deleted")

	case "/model":
		s := a.store.CurrentSession(ctx)
		if len(args) == 0 {
			fmt.Fprintf(w, "model: %s\n", s.Model)
			return false, nil
		}
		if err := a.store.SetSessionModel(ctx, s.ID, args[0]); err != nil {
			return false, err
		}
		a.notifier.Notify(ctx, "Model set to "+args[0])

	case "/models":
		return false, a.listModels(ctx, w)

	case "/memory":
		return false, a.memoryAction(ctx, w, args)

	case "/edit":
		if len(args) < 2 {
			return false, goerr.New("usage: /edit <i> <text>")
		}
		i, err := parseIndex(args[0])
		if err != nil {
			return false, err
		}
		text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		r.send(ctx, func(ctx context.Context) error {
			_, err := a.chat.Edit(ctx, i, text)
			return err
		})

	case "/regen":
		i, err := r.indexArg(ctx, args)
		if err != nil {
			return false, err
		}
		r.send(ctx, func(ctx context.Context) error {
			_, err := a.chat.Regenerate(ctx, i)
			return err
		})

	case "/copy":
		i, err := r.indexArg(ctx, args)
		if err != nil {
			return false, err
		}
		return false, a.actions.CopyMessage(ctx, i)

	case "/speak":
		i, err := r.indexArg(ctx, args)
		if err != nil {
			return false, err
		}
		return false, a.actions.SpeakMessage(ctx, i)

	case "/stop":
		a.synth.Stop()

	case "/voice":
		return false, r.voice(ctx, w, args)

	case "/speed", "/pitch":
		if len(args) == 0 {
			return false, goerr.New("usage: " + name + " <0-2>")
		}
		return false, a.setPref(ctx, strings.TrimPrefix(name, "/"), args[0])

	case "/autospeak":
		on := !a.store.AutoSpeak(ctx)
		if len(args) > 0 {
			v, err := parseBool(args[0])
			if err != nil {
				return false, err
			}
			on = v
		}
		a.setAutoSpeak(ctx, on)
		if on {
			a.notifier.Notify(ctx, "Auto-speak enabled")
		} else {
			a.notifier.Notify(ctx, "Auto-speak disabled")
		}

	case "/theme":
		if len(args) == 0 {
			fmt.Fprintf(w, "theme: %s (available: %s)\n", a.renderer.Theme(), strings.Join(render.ThemeNames(), ", "))
			return false, nil
		}
		if err := a.setPref(ctx, "theme", args[0]); err != nil {
			return false, err
		}
		a.renderer.ShowSession(ctx, a.store.CurrentSession(ctx))

	case "/image":
		return false, r.image(ctx, w, args)

	case "/dictate":
		on, err := r.dictation.Toggle(ctx)
		if err != nil {
			return false, err
		}
		if on {
			a.notifier.Notify(ctx, "Dictation started. Type /dictate again to stop.")
		} else {
			a.notifier.Notify(ctx, "Dictation stopped")
		}

	case "/voicechat":
		return false, r.voiceChat(ctx)

	case "/personalize":
		if len(args) < 2 {
			return false, goerr.New("usage: /personalize <name|interests|traits|info> <value>")
		}
		p := a.store.Personalization(ctx)
		value := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		switch args[0] {
		case "name":
			p.Name = value
		case "interests":
			p.Interests = value
		case "traits":
			p.AITraits = value
		case "info":
			p.AdditionalInfo = value
		default:
			return false, goerr.New("unknown personalization field", goerr.V("field", args[0]))
		}
		a.personalize(ctx, p)

	case "/screensaver":
		return false, runScreensaver(ctx, a, r.rl, screensaverOptions{})

	case "/simple":
		if err := runSimple(ctx, a, r.rl); err != nil {
			return false, err
		}
		a.renderer.ShowSession(ctx, a.store.CurrentSession(ctx))

	case "/stats":
		return false, a.showStats(ctx, w)

	default:
		return false, goerr.New("unknown command, try /help", goerr.V("command", name))
	}
	return false, nil
}

// indexArg reads a message index, defaulting to the last message
func (r *chatREPL) indexArg(ctx context.Context, args []string) (int, error) {
	if len(args) > 0 {
		return parseIndex(args[0])
	}
	n := len(r.app.store.CurrentSession(ctx).Messages)
	if n == 0 {
		return 0, goerr.Wrap(model.ErrInvalidIndex, "the chat is empty")
	}
	return n - 1, nil
}

func (r *chatREPL) voice(ctx context.Context, w io.Writer, args []string) error {
	a := r.app
	if len(args) == 0 {
		v := a.store.Voice(ctx)
		fmt.Fprintf(w, "voice: %q speed=%.2f pitch=%.2f\n", v.Name, v.Speed, v.Pitch)
		return nil
	}
	if args[0] != "list" {
		return a.setPref(ctx, "voice", strings.Join(args, " "))
	}
	if a.voices == nil {
		return goerr.Wrap(model.ErrUnsupported, "speech synthesis is not available")
	}
	voices, err := a.voices.Voices(ctx)
	if err != nil {
		return err
	}
	current := a.store.Voice(ctx).Name
	for _, v := range voices {
		mark := " "
		if v == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, v)
	}
	return nil
}

func (r *chatREPL) image(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 {
		return goerr.New("usage: /image <copy|save|regen|open> <i> [n]")
	}
	i, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	n := 1
	if len(args) > 2 {
		if n, err = parseIndex(args[2]); err != nil {
			return err
		}
	}

	a := r.app
	switch args[0] {
	case "copy":
		return a.actions.CopyImage(ctx, i, n)
	case "save", "download":
		loc, err := a.actions.DownloadImage(ctx, i, n)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, loc)
	case "regen":
		if _, err := a.actions.RegenerateImage(ctx, i, n); err != nil {
			return err
		}
		session := a.store.CurrentSession(ctx)
		if i < len(session.Messages) {
			a.renderer.Show(ctx, i, session.Messages[i])
		}
	case "open":
		return a.actions.OpenImage(ctx, i, n)
	default:
		return goerr.New("unknown image action", goerr.V("action", args[0]))
	}
	return nil
}

// voiceChat listens hands-free until Enter is pressed
func (r *chatREPL) voiceChat(ctx context.Context) error {
	a := r.app
	w := r.rl.Stdout()
	r.dictation.Stop()

	slideshow := speech.NewSlideshow(a.images,
		func(ctx context.Context) string {
			msgs := a.store.CurrentSession(ctx).Messages
			if len(msgs) == 0 {
				return ""
			}
			return msgs[len(msgs)-1].Content
		},
		func(ctx context.Context, url string) {
			fmt.Fprintf(w, "\n🖼  %s\n", url)
		},
		speech.WithSlideshowLoader(a.loader, a.notifier),
	)
	vc := speech.NewVoiceChat(a.listener,
		func(ctx context.Context, text string) error {
			fmt.Fprintln(w)
			_, err := a.chat.Send(ctx, text)
			return err
		},
		speech.WithSlideshow(slideshow),
		speech.WithDisplay(func(pending string) {
			fmt.Fprintf(w, "\r🎙  %s", pending)
		}),
	)

	if err := vc.Start(ctx); err != nil {
		return err
	}
	defer vc.Stop()
	a.notifier.Notify(ctx, "Voice chat started. Press Enter to stop.")

	r.rl.SetPrompt("")
	_, err := r.rl.Readline()
	if err != nil && !errors.Is(err, readline.ErrInterrupt) && !errors.Is(err, io.EOF) {
		return goerr.Wrap(err, "failed to read input")
	}
	a.notifier.Notify(ctx, "Voice chat stopped")
	return nil
}
