package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

type runner struct {
	t    *testing.T
	data string
	args []string
}

func newRunner(t *testing.T, extra ...string) *runner {
	t.Helper()
	return &runner{
		t:    t,
		data: filepath.Join(t.TempDir(), "chatterbox.db"),
		args: extra,
	}
}

// run executes one command line against the runner's database and returns stdout
func (r *runner) run(cmd []string, args ...string) (string, *Error) {
	r.t.Helper()
	argv := append([]string{"chatterbox"}, cmd...)
	argv = append(argv, "--data", r.data, "--plain", "--api-endpoint", "http://127.0.0.1:0")
	argv = append(argv, r.args...)
	argv = append(argv, args...)

	var out, errOut bytes.Buffer
	err := run(context.Background(), argv, &out, &errOut)
	return out.String(), err
}

func (r *runner) mustRun(cmd []string, args ...string) string {
	r.t.Helper()
	out, err := r.run(cmd, args...)
	if err != nil {
		r.t.Fatalf("command %v failed: %s", cmd, err.Message)
	}
	return out
}

func TestSessionsLifecycle(t *testing.T) {
	r := newRunner(t)

	id := strings.TrimSpace(r.mustRun([]string{"sessions", "new"}, "Trip", "planning"))
	gt.True(t, id != "")

	out := r.mustRun([]string{"sessions", "list"})
	gt.S(t, out).Contains("Trip planning")
	gt.S(t, out).Contains("*  1. Trip planning")

	r.mustRun([]string{"sessions", "rename"}, id, "Holiday")
	out = r.mustRun([]string{"sessions", "list"})
	gt.S(t, out).Contains("Holiday")
	gt.False(t, strings.Contains(out, "Trip planning"))

	r.mustRun([]string{"sessions", "delete"}, id)
	out = r.mustRun([]string{"sessions", "list"})
	gt.False(t, strings.Contains(out, "Holiday"))
}

func TestSessionsUnknownReference(t *testing.T) {
	r := newRunner(t)
	_, err := r.run([]string{"sessions", "use"}, "no-such-session")
	gt.True(t, err != nil)
	gt.Equal(t, err.Code, 1)
}

func TestMemoryCommands(t *testing.T) {
	r := newRunner(t)

	r.mustRun([]string{"memory", "add"}, "likes", "green", "tea")
	r.mustRun([]string{"memory", "add"}, "lives in Osaka")
	_, err := r.run([]string{"memory", "add"}, "likes green tea")
	gt.True(t, err != nil)

	out := r.mustRun([]string{"memory", "list"})
	gt.S(t, out).Contains(" 0. likes green tea")
	gt.S(t, out).Contains(" 1. lives in Osaka")

	r.mustRun([]string{"memory", "edit"}, "1", "lives in Kyoto")
	r.mustRun([]string{"memory", "remove"}, "0")
	out = r.mustRun([]string{"memory", "list"})
	gt.False(t, strings.Contains(out, "green tea"))
	gt.S(t, out).Contains(" 0. lives in Kyoto")

	r.mustRun([]string{"memory", "clear"})
	out = r.mustRun([]string{"memory", "list"})
	gt.S(t, out).Contains("No memories stored.")
}

func TestPrefs(t *testing.T) {
	r := newRunner(t)

	r.mustRun([]string{"prefs", "set"}, "theme", "ocean")
	r.mustRun([]string{"prefs", "set"}, "speed", "1.5")
	_, err := r.run([]string{"prefs", "set"}, "theme", "neon")
	gt.True(t, err != nil)
	_, err = r.run([]string{"prefs", "set"}, "pitch", "7")
	gt.True(t, err != nil)

	r.mustRun([]string{"prefs", "personalize"}, "--name", "Mika", "--interests", "sailing")

	out := r.mustRun([]string{"prefs", "show"})
	gt.S(t, out).Contains("theme:       ocean")
	gt.S(t, out).Contains("speed=1.50")
	gt.S(t, out).Contains("Name: Mika")

	out = r.mustRun([]string{"memory", "list"})
	gt.S(t, out).Contains(model.PersonalizationPrefix)
}

func TestResetRequiresConfirmation(t *testing.T) {
	r := newRunner(t)
	r.mustRun([]string{"memory", "add"}, "keep me")

	_, err := r.run([]string{"reset"})
	gt.True(t, err != nil)
	out := r.mustRun([]string{"memory", "list"})
	gt.S(t, out).Contains("keep me")

	r.mustRun([]string{"reset"}, "--yes")
	out = r.mustRun([]string{"memory", "list"})
	gt.S(t, out).Contains("No memories stored.")
}

func TestAskSendsAndStoresReply(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []model.ChatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body model.ChatRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Ahoy there, sailor."}}]}`))
	}))
	defer srv.Close()

	r := newRunner(t, "--text-endpoint", srv.URL)
	r.mustRun([]string{"memory", "add"}, "likes sailing")

	out := r.mustRun([]string{"ask"}, "hello", "there")
	gt.S(t, out).Contains("hello there")
	gt.S(t, out).Contains("Ahoy there, sailor.")

	mu.Lock()
	gt.A(t, requests).Length(1)
	req := requests[0]
	mu.Unlock()
	gt.Equal(t, req.Messages[0].Role, "system")
	gt.S(t, req.Messages[1].Content).Contains("likes sailing")
	gt.Equal(t, req.Messages[len(req.Messages)-1].Content, "hello there")

	out = r.mustRun([]string{"sessions", "show"})
	gt.S(t, out).Contains("Ahoy there, sailor.")
}

func TestAskFailureKeepsUserMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := newRunner(t, "--text-endpoint", srv.URL)
	_, err := r.run([]string{"ask"}, "are you there?")
	gt.True(t, err != nil)

	out := r.mustRun([]string{"sessions", "show"})
	gt.S(t, out).Contains("are you there?")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte("theme: hacker\npersonalization:\n  name: Ren\n"), 0o600))

	r := newRunner(t, "--config", path)
	out := r.mustRun([]string{"prefs", "show"})
	// file values only change flags, the persisted theme is untouched
	gt.S(t, out).Contains("theme:       dark")

	cfg := &config{configFile: filepath.Join(dir, "missing.yaml")}
	gt.Error(t, cfg.loadFile(nil))
}

func TestParseHelpers(t *testing.T) {
	n, err := parseIndex(" 3 ")
	gt.NoError(t, err)
	gt.Equal(t, n, 3)
	_, err = parseIndex("three")
	gt.Error(t, err)

	on, err := parseBool("on")
	gt.NoError(t, err)
	gt.True(t, on)
	off, err := parseBool("No")
	gt.NoError(t, err)
	gt.False(t, off)
	_, err = parseBool("maybe")
	gt.Error(t, err)

	gt.True(t, isTheme("dark"))
	gt.False(t, isTheme("neon"))
}
