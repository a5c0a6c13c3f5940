package model

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultImagePrefix is the URL prefix that marks an embedded generated image
const DefaultImagePrefix = "https://image.pollinations.ai/prompt/"

// GeneratedImageHeading precedes image URLs appended to a reply
const GeneratedImageHeading = "**Generated Image:**"

type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentCode
	SegmentImage
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentCode:
		return "code"
	case SegmentImage:
		return "image"
	default:
		return "text"
	}
}

// Segment is one typed piece of a message body
type Segment struct {
	Kind SegmentKind

	// SegmentText
	Text string

	// SegmentCode
	Language string
	Body     string

	// SegmentImage
	URL    string
	Prompt string
}

var codeBlockPattern = regexp.MustCompile("(?is)(?:\\[CODE\\]\\s*)?```([\\w+#.-]*)[ \\t]*\\r?\\n(.*?)\\r?\\n?```(?:\\s*\\[/CODE\\])?")

// ContentParser splits free-text message content into segments
type ContentParser struct {
	prefix  string
	imageRe *regexp.Regexp
}

var DefaultParser = NewContentParser(DefaultImagePrefix)

func NewContentParser(imagePrefix string) *ContentParser {
	return &ContentParser{
		prefix:  imagePrefix,
		imageRe: regexp.MustCompile(regexp.QuoteMeta(imagePrefix) + `[^\s)"'<>]+`),
	}
}

// ImagePrefix returns the URL prefix recognized as an image
func (p *ContentParser) ImagePrefix() string {
	return p.prefix
}

// Parse returns the segments of content in display order. Image URLs are lifted out
// of the prose that contains them and emitted right after it.
func (p *ContentParser) Parse(content string) []Segment {
	var segments []Segment
	last := 0
	for _, m := range codeBlockPattern.FindAllStringSubmatchIndex(content, -1) {
		segments = append(segments, p.parseProse(content[last:m[0]])...)
		lang := strings.ToLower(content[m[2]:m[3]])
		if lang == "" {
			lang = "text"
		}
		segments = append(segments, Segment{
			Kind:     SegmentCode,
			Language: lang,
			Body:     content[m[4]:m[5]],
		})
		last = m[1]
	}
	segments = append(segments, p.parseProse(content[last:])...)
	return segments
}

// ImageURLs returns all embedded image URLs in content
func (p *ContentParser) ImageURLs(content string) []string {
	return p.imageRe.FindAllString(content, -1)
}

// PromptOf recovers the prompt text from an image URL
func (p *ContentParser) PromptOf(imageURL string) string {
	rest := strings.TrimPrefix(imageURL, p.prefix)
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	prompt, err := url.PathUnescape(rest)
	if err != nil {
		return rest
	}
	return prompt
}

func (p *ContentParser) parseProse(text string) []Segment {
	urls := p.imageRe.FindAllString(text, -1)
	prose := p.imageRe.ReplaceAllString(text, "")
	prose = strings.Replace(prose, GeneratedImageHeading, "", 1)
	prose = strings.TrimSpace(prose)

	var segments []Segment
	if prose != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: prose})
	}
	for _, u := range urls {
		segments = append(segments, Segment{Kind: SegmentImage, URL: u, Prompt: p.PromptOf(u)})
	}
	return segments
}
