package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
	"github.com/m-mizutani/goerr/v2"
)

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, goerr.Wrap(model.ErrInvalidIndex, "index must be a number", goerr.V("value", s))
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, goerr.New("expected on or off", goerr.V("value", s))
}

// sessionRef resolves a list position or a session id
func (a *app) sessionRef(ctx context.Context, ref string) (*model.Session, error) {
	sessions := a.store.Sessions(ctx)
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1], nil
	}
	s, err := a.store.GetSession(ctx, model.SessionID(ref))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) listSessions(ctx context.Context, w io.Writer) {
	current := a.store.CurrentSession(ctx)
	for i, s := range a.store.Sessions(ctx) {
		mark := " "
		if s.ID == current.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %2d. %-40s %-12s %3d msgs  %s  (%s)\n",
			mark, i+1, s.Name, s.Model, len(s.Messages),
			s.UpdatedAt().Format("2006-01-02 15:04"), s.ID)
	}
}

func (a *app) listMemories(ctx context.Context, w io.Writer) {
	memories := a.memory.List(ctx)
	if len(memories) == 0 {
		fmt.Fprintln(w, "No memories stored.")
		return
	}
	for i, m := range memories {
		fmt.Fprintf(w, "%2d. %s\n", i, m.Text)
	}
}

// memoryAction runs list, add, remove, edit and clear on the memory facade
func (a *app) memoryAction(ctx context.Context, w io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		a.listMemories(ctx, w)
		return nil
	}

	switch args[0] {
	case "add":
		text := strings.Join(args[1:], " ")
		if !a.memory.Add(ctx, text) {
			return goerr.Wrap(model.ErrInvalidMemory, "memory was blank or already stored")
		}
		a.notifier.Notify(ctx, "Memory added")

	case "remove", "rm":
		if len(args) < 2 {
			return goerr.New("usage: memory remove <index>")
		}
		i, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		if !a.memory.Remove(ctx, i) {
			return goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("index", i))
		}
		a.notifier.Notify(ctx, "Memory removed")

	case "edit":
		if len(args) < 3 {
			return goerr.New("usage: memory edit <index> <text>")
		}
		i, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		if !a.memory.Update(ctx, i, strings.Join(args[2:], " ")) {
			return goerr.Wrap(model.ErrMemoryNotFound, "memory not updated", goerr.V("index", i))
		}
		a.notifier.Notify(ctx, "Memory updated")

	case "clear":
		a.memory.Clear(ctx)
		a.notifier.Notify(ctx, "All memories cleared")

	default:
		return goerr.New("unknown memory action", goerr.V("action", args[0]))
	}
	return nil
}

func (a *app) listModels(ctx context.Context, w io.Writer) error {
	models, err := a.models.ListModels(ctx)
	if err != nil {
		a.notifier.Notify(ctx, "Couldn't load the model list, using the default model")
		models = adapter.SelectableModels(nil)
	}
	def := a.store.DefaultModel(ctx)
	for _, m := range models {
		mark := " "
		if m.Name == def {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-24s %s\n", mark, m.Name, m.Tooltip())
	}
	return nil
}

func (a *app) showPrefs(ctx context.Context, w io.Writer) {
	voice := a.store.Voice(ctx)
	p := a.store.Personalization(ctx)
	ss := a.store.ScreensaverSettings(ctx)

	fmt.Fprintf(w, "theme:       %s\n", a.store.Theme(ctx))
	fmt.Fprintf(w, "model:       %s\n", a.store.DefaultModel(ctx))
	fmt.Fprintf(w, "voice:       %q speed=%.2f pitch=%.2f\n", voice.Name, voice.Speed, voice.Pitch)
	fmt.Fprintf(w, "autospeak:   %t\n", a.store.AutoSpeak(ctx))
	fmt.Fprintf(w, "user id:     %s\n", a.store.UserID(ctx))
	fmt.Fprintf(w, "screensaver: timer=%ds aspect=%s model=%s enhance=%t private=%t\n",
		ss.Timer, ss.Aspect, ss.Model, ss.Enhance, ss.Private)
	if !p.IsEmpty() {
		fmt.Fprintf(w, "personal:    %s\n", p.MemoryText())
	}
}

// setPref updates one preference by name
func (a *app) setPref(ctx context.Context, key, value string) error {
	switch key {
	case "theme":
		if !isTheme(value) {
			return goerr.New("unknown theme", goerr.V("theme", value), goerr.V("available", render.ThemeNames()))
		}
		a.store.SetTheme(ctx, value)
		a.renderer.SetTheme(value)

	case "model":
		a.store.SetDefaultModel(ctx, value)

	case "voice":
		a.store.SetVoiceName(ctx, value)

	case "speed", "pitch":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 2 {
			return goerr.New("value must be between 0 and 2", goerr.V(key, value))
		}
		if key == "speed" {
			a.store.SetVoiceSpeed(ctx, f)
		} else {
			a.store.SetVoicePitch(ctx, f)
		}

	case "autospeak":
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		a.setAutoSpeak(ctx, on)

	default:
		return goerr.New("unknown preference", goerr.V("key", key))
	}
	a.notifier.Notify(ctx, fmt.Sprintf("%s set to %s", key, value))
	return nil
}

// setAutoSpeak stores the flag and mirrors it into memory so replies can adapt
func (a *app) setAutoSpeak(ctx context.Context, on bool) {
	a.store.SetAutoSpeak(ctx, on)
	a.memory.SetVoicePreference(ctx, on)
	if !on {
		a.synth.Stop()
	}
}

func (a *app) personalize(ctx context.Context, p model.Personalization) {
	a.store.SetPersonalization(ctx, p)
	a.memory.SetPersonalization(ctx, p)
	a.notifier.Notify(ctx, "Personalization saved")
}

func (a *app) showStats(ctx context.Context, w io.Writer) error {
	count, err := a.stats.VisitorCount(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to get visitor count")
	}
	fmt.Fprintf(w, "user id:  %s\n", a.store.UserID(ctx))
	fmt.Fprintf(w, "visitors: %s\n", adapter.PrettyNumber(count))
	return nil
}

func isTheme(name string) bool {
	for _, t := range render.ThemeNames() {
		if t == name {
			return true
		}
	}
	return false
}
