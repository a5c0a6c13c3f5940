package adapter

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
)

// FallbackImageURL replaces images that failed to load
const FallbackImageURL = "https://via.placeholder.com/512?text=Image+Failed"

// ImageParams are the query parameters of a generated image URL
type ImageParams struct {
	Prompt  string
	Width   int
	Height  int
	Seed    string
	Model   string
	NoLogo  bool
	Private bool
	Enhance bool
}

// ImageURLBuilder templates image service URLs as <prefix><escaped prompt>?<params>
type ImageURLBuilder struct {
	prefix string
}

func NewImageURLBuilder(prefix string) *ImageURLBuilder {
	if prefix == "" {
		prefix = model.DefaultImagePrefix
	}
	return &ImageURLBuilder{prefix: prefix}
}

// Prefix returns the URL prefix of generated images
func (b *ImageURLBuilder) Prefix() string {
	return b.prefix
}

// Build returns the image URL for p. Unset optional parameters are omitted.
func (b *ImageURLBuilder) Build(p ImageParams) string {
	q := url.Values{}
	if p.Width > 0 {
		q.Set("width", strconv.Itoa(p.Width))
	}
	if p.Height > 0 {
		q.Set("height", strconv.Itoa(p.Height))
	}
	if p.Seed != "" {
		q.Set("seed", p.Seed)
	}
	if p.Model != "" {
		q.Set("model", p.Model)
	}
	if p.NoLogo {
		q.Set("nologo", "true")
	}
	if p.Private {
		q.Set("private", "true")
	}
	if p.Enhance {
		q.Set("enhance", "true")
	}
	q.Set("safe", "false")
	q.Set("nolog", "true")

	return b.prefix + url.PathEscape(p.Prompt) + "?" + q.Encode()
}

// RandomSeed returns a zero-padded 6-digit seed
func RandomSeed() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// WithSeed returns rawURL with its seed query parameter replaced
func WithSeed(rawURL, seed string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", goerr.Wrap(err, "invalid image URL", goerr.V("url", rawURL))
	}
	q := u.Query()
	q.Set("seed", seed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HTTPImageLoader downloads images and verifies they decode
type HTTPImageLoader struct {
	client *http.Client
}

func NewHTTPImageLoader(client *http.Client) *HTTPImageLoader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPImageLoader{client: client}
}

// Load returns the image bytes. Bodies that are not a decodable image are rejected with
// model.ErrNotReady.
func (l *HTTPImageLoader) Load(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create image request", goerr.V("url", imageURL))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch image", goerr.V("url", imageURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, goerr.Wrap(model.ErrRemoteStatus, "image request failed",
			goerr.V("url", imageURL), goerr.V("status", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read image", goerr.V("url", imageURL))
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, goerr.Wrap(model.ErrNotReady, "image did not decode",
			goerr.V("url", imageURL), goerr.V("error", err.Error()))
	}
	return data, nil
}
