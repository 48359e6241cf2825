package extraction

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"
)

// Kind is the detected shape of raw content.
type Kind int

const (
	KindText Kind = iota
	KindHTML
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindJSON:
		return "json"
	default:
		return "text"
	}
}

// Document is raw content prepared for extraction.
type Document struct {
	Kind Kind
	Raw  string
	// Text is normalized readable text.
	Text string
	// FullText is the normalized text of the whole page, used by the
	// pattern fallback when readability trimmed too much.
	FullText string
	Title    string
	html     *goquery.Document
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeText applies NFKC and folds whitespace runs to single spaces.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// DetectKind guesses the content kind from its declared type and shape.
func DetectKind(content, contentType string) Kind {
	ct := strings.ToLower(contentType)
	trimmed := strings.TrimSpace(content)
	switch {
	case strings.Contains(ct, "json"):
		return KindJSON
	case strings.Contains(ct, "html"):
		return KindHTML
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		if json.Valid([]byte(trimmed)) {
			return KindJSON
		}
	}
	lower := strings.ToLower(trimmed[:min(len(trimmed), 512)])
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<div") {
		return KindHTML
	}
	return KindText
}

// Preprocess detects the content kind and produces normalized text.
// pageURL may be empty.
func Preprocess(content, contentType, pageURL string, minReadable int) Document {
	doc := Document{Kind: DetectKind(content, contentType), Raw: content}

	switch doc.Kind {
	case KindHTML:
		doc.html, _ = goquery.NewDocumentFromReader(strings.NewReader(content))
		if doc.html != nil {
			body := doc.html.Find("body").Clone()
			body.Find("script, style, noscript").Remove()
			doc.FullText = NormalizeText(body.Text())
			doc.Title = NormalizeText(doc.html.Find("title").First().Text())
		}
		doc.Text = doc.FullText
		if readable, title := readableText(content, pageURL); utf8.RuneCountInString(readable) >= minReadable {
			doc.Text = readable
			if title != "" {
				doc.Title = title
			}
		}
	default:
		doc.Text = NormalizeText(content)
		doc.FullText = doc.Text
	}
	return doc
}

func readableText(html, pageURL string) (text, title string) {
	if pageURL == "" {
		pageURL = "http://localhost/"
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return "", ""
	}
	return NormalizeText(article.TextContent), NormalizeText(article.Title)
}

// Truncate cuts text to at most budget tokens, estimated at CharsPerToken
// characters each. It never splits a rune and reports whether it cut.
func Truncate(text string, budget int) (string, bool) {
	limit := budget * CharsPerToken
	if budget <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], true
		}
		n++
	}
	return text, false
}
