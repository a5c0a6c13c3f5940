package adapter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"github.com/tidwall/gjson"
)

const baseWordsPerMinute = 175

// CommandSynth speaks through an OS speech command. A custom command receives the text
// on stdin and the voice settings in CHATTERBOX_VOICE, CHATTERBOX_RATE and
// CHATTERBOX_PITCH.
type CommandSynth struct {
	program string
	custom  string
}

// NewCommandSynth picks the speech command. An empty custom command selects the first
// available of espeak-ng, espeak and say.
func NewCommandSynth(custom string) (*CommandSynth, error) {
	if custom != "" {
		return &CommandSynth{custom: custom}, nil
	}
	for _, name := range []string{"espeak-ng", "espeak", "say"} {
		if path, err := exec.LookPath(name); err == nil {
			return &CommandSynth{program: path}, nil
		}
	}
	return nil, goerr.Wrap(model.ErrUnsupported, "no speech synthesis command found")
}

func (s *CommandSynth) Speak(ctx context.Context, u model.Utterance) error {
	var cmd *exec.Cmd
	if s.custom != "" {
		cmd = exec.CommandContext(ctx, "sh", "-c", s.custom)
		cmd.Stdin = strings.NewReader(u.Text)
		cmd.Env = append(os.Environ(),
			"CHATTERBOX_VOICE="+u.Voice,
			"CHATTERBOX_RATE="+strconv.FormatFloat(u.Rate, 'f', 2, 64),
			"CHATTERBOX_PITCH="+strconv.FormatFloat(u.Pitch, 'f', 2, 64),
		)
	} else {
		cmd = exec.CommandContext(ctx, s.program, s.args(u)...)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return goerr.Wrap(err, "speech command failed", goerr.V("output", truncate(string(out), 200)))
	}
	return nil
}

func (s *CommandSynth) args(u model.Utterance) []string {
	wpm := strconv.Itoa(int(baseWordsPerMinute * u.Rate))
	var args []string
	if strings.HasSuffix(s.program, "say") {
		args = append(args, "-r", wpm)
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
	} else {
		pitch := int(u.Pitch * 50)
		if pitch > 99 {
			pitch = 99
		}
		args = append(args, "-s", wpm, "-p", strconv.Itoa(pitch))
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
	}
	return append(args, "--", u.Text)
}

// Voices lists the voice names the speech command offers
func (s *CommandSynth) Voices(ctx context.Context) ([]string, error) {
	if s.custom != "" {
		return nil, nil
	}

	var cmd *exec.Cmd
	isSay := strings.HasSuffix(s.program, "say")
	if isSay {
		cmd = exec.CommandContext(ctx, s.program, "-v", "?")
	} else {
		cmd = exec.CommandContext(ctx, s.program, "--voices")
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list voices", goerr.V("program", s.program))
	}

	var voices []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for first := true; scanner.Scan(); first = false {
		fields := strings.Fields(scanner.Text())
		switch {
		case isSay && len(fields) > 0:
			voices = append(voices, fields[0])
		case !isSay && !first && len(fields) > 3:
			voices = append(voices, fields[3])
		}
	}
	return voices, nil
}

// CommandRecognizer reads transcripts from the stdout of a long running transcriber
// command. Each line is either a plain final transcript or a JSON object with a
// "partial" or "text" field.
type CommandRecognizer struct {
	command string
}

func NewCommandRecognizer(command string) (*CommandRecognizer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, goerr.Wrap(model.ErrUnsupported, "no speech recognition command configured")
	}
	return &CommandRecognizer{command: command}, nil
}

func (r *CommandRecognizer) Transcribe(ctx context.Context, emit func(model.Transcript)) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", r.command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return goerr.Wrap(err, "failed to open transcriber output")
	}
	if err := cmd.Start(); err != nil {
		return goerr.Wrap(err, "failed to start transcriber", goerr.V("command", r.command))
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if t, ok := ParseTranscriptLine(scanner.Text()); ok {
			emit(t)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return goerr.Wrap(err, "transcriber exited", goerr.V("command", r.command))
	}
	logging.From(ctx).Debug("transcriber finished", "command", r.command)
	return nil
}

// ParseTranscriptLine decodes one line of transcriber output
func ParseTranscriptLine(line string) (model.Transcript, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Transcript{}, false
	}

	if gjson.Valid(line) && strings.HasPrefix(line, "{") {
		obj := gjson.Parse(line)
		if text := strings.TrimSpace(obj.Get("text").String()); text != "" {
			return model.Transcript{Text: text, Final: true}, true
		}
		if partial := strings.TrimSpace(obj.Get("partial").String()); partial != "" {
			return model.Transcript{Text: partial}, true
		}
		return model.Transcript{}, false
	}

	return model.Transcript{Text: line, Final: true}, true
}

func (s *CommandSynth) String() string {
	if s.custom != "" {
		return fmt.Sprintf("custom(%s)", s.custom)
	}
	return s.program
}
