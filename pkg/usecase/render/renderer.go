package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
)

// Renderer writes messages to a terminal as styled prose, highlighted code and image
// entries with action hints
type Renderer struct {
	w        io.Writer
	parser   *model.ContentParser
	images   *Images
	notifier interfaces.Notifier
	plain    bool
	hints    bool

	mu    sync.Mutex
	theme Theme
}

type Option func(*Renderer)

// WithTheme selects the palette by name
func WithTheme(name string) Option {
	return func(r *Renderer) {
		r.theme = LookupTheme(name)
	}
}

// WithParser sets the content parser. The default recognizes the default image prefix.
func WithParser(p *model.ContentParser) Option {
	return func(r *Renderer) {
		r.parser = p
	}
}

// WithImages sets the image tracker used for image segments
func WithImages(images *Images) Option {
	return func(r *Renderer) {
		r.images = images
	}
}

// WithRenderNotifier routes image load failures to n
func WithRenderNotifier(n interfaces.Notifier) Option {
	return func(r *Renderer) {
		r.notifier = n
	}
}

// WithPlain disables colors and highlighting
func WithPlain() Option {
	return func(r *Renderer) {
		r.plain = true
	}
}

// WithoutHints omits per-message action hints
func WithoutHints() Option {
	return func(r *Renderer) {
		r.hints = false
	}
}

func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		w:      w,
		parser: model.DefaultParser,
		hints:  true,
		theme:  LookupTheme(model.DefaultTheme),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.images == nil {
		r.images = NewImages(adapter.NewHTTPImageLoader(nil))
	}
	return r
}

// Images returns the image tracker of the renderer
func (r *Renderer) Images() *Images {
	return r.images
}

// SetTheme switches the palette; unknown names fall back to dark
func (r *Renderer) SetTheme(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.theme = LookupTheme(name)
}

// Theme returns the active palette name
func (r *Renderer) Theme() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.theme.Name
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// Highlight returns code colored for the terminal. Unknown languages and plain mode
// return code unchanged.
func (r *Renderer) Highlight(code, lang string) string {
	if r.plain {
		return code
	}
	var buf strings.Builder
	if err := quick.Highlight(&buf, code, lang, "terminal256", r.theme.CodeStyle); err != nil {
		return code
	}
	return buf.String()
}

// Format renders one message. index is the position of the message in its session and
// is used in action hints.
func (r *Renderer) Format(index int, msg *model.Message) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	if msg.Role == model.RoleUser {
		b.WriteString(r.style(r.theme.User, fmt.Sprintf("[%d] You", index)))
	} else {
		b.WriteString(r.style(r.theme.AI, fmt.Sprintf("[%d] AI", index)))
	}
	b.WriteString("\n")

	imageNo := 0
	for _, seg := range r.parser.Parse(msg.Content) {
		switch seg.Kind {
		case model.SegmentText:
			b.WriteString(r.style(r.theme.Text, seg.Text))
			b.WriteString("\n")

		case model.SegmentCode:
			b.WriteString(r.style(r.theme.Hint, "```"+seg.Language))
			b.WriteString("\n")
			b.WriteString(strings.TrimRight(r.Highlight(seg.Body, seg.Language), "\n"))
			b.WriteString("\n")
			b.WriteString(r.style(r.theme.Hint, "```"))
			b.WriteString("\n")

		case model.SegmentImage:
			imageNo++
			state := r.images.State(seg.URL)
			line := fmt.Sprintf("🖼  #%d %s", imageNo, seg.Prompt)
			b.WriteString(r.style(r.theme.Image, line))
			b.WriteString(" ")
			if state == ImageFailed {
				b.WriteString(r.style(r.theme.Error, "(failed to load)"))
			} else {
				b.WriteString(r.style(r.theme.Hint, "("+state.String()+")"))
			}
			b.WriteString("\n  ")
			b.WriteString(r.style(r.theme.Hint, seg.URL))
			b.WriteString("\n")
		}
	}

	if r.hints {
		b.WriteString(r.style(r.theme.Hint, actionHints(index, msg.Role, imageNo)))
		b.WriteString("\n")
	}
	return b.String()
}

func actionHints(index int, role model.Role, images int) string {
	hints := []string{
		fmt.Sprintf("/copy %d", index),
		fmt.Sprintf("/speak %d", index),
	}
	if role == model.RoleAI {
		hints = append(hints, fmt.Sprintf("/regen %d", index))
	}
	hints = append(hints, fmt.Sprintf("/edit %d", index))
	if images > 0 {
		hints = append(hints, fmt.Sprintf("/image copy|save|regen|open %d <n>", index))
	}
	return "  " + strings.Join(hints, " · ")
}

// Show writes a message and starts loading its images
func (r *Renderer) Show(ctx context.Context, index int, msg *model.Message) {
	for _, u := range r.parser.ImageURLs(msg.Content) {
		imageURL := u
		r.images.Track(ctx, imageURL, func(state ImageState, err error) {
			if state == ImageFailed {
				r.Notice(ctx, "⚠️ Failed to load image: "+r.parser.PromptOf(imageURL))
			}
		})
	}

	text := r.Format(index, msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, text)
}

// ShowSession writes every message of s under a title line
func (r *Renderer) ShowSession(ctx context.Context, s *model.Session) {
	r.mu.Lock()
	title := r.style(r.theme.Hint, fmt.Sprintf("── %s (%s) ──", s.Name, s.Model))
	_, _ = fmt.Fprintln(r.w, title)
	r.mu.Unlock()

	for i, msg := range s.Messages {
		r.Show(ctx, i, msg)
	}
}

// Notice writes a short error-styled line, or forwards it to the notifier when set
func (r *Renderer) Notice(ctx context.Context, message string) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, message)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w, r.style(r.theme.Error, message))
}
