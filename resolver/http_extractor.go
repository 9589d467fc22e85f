package resolver

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultTranscriptURL = "https://www.youtube.com/api/timedtext"
	maxBodyBytes         = 5 << 20
	substantialContent   = 200
)

// Selectors tried in order for the article body.
var contentSelectors = []string{
	"article",
	`[role="main"]`,
	".post-content",
	".article-content",
	".entry-content",
	"main",
	".content",
}

// HTTPExtractor fetches article pages and timed-text transcripts over HTTP.
type HTTPExtractor struct {
	client        *http.Client
	userAgent     string
	transcriptURL string
	language      string
}

// NewHTTPExtractor creates an extractor; a nil client gets a 15s timeout.
func NewHTTPExtractor(client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPExtractor{
		client:        client,
		userAgent:     defaultUserAgent,
		transcriptURL: defaultTranscriptURL,
		language:      "en",
	}
}

// WithTranscriptEndpoint points transcript requests at another timed-text endpoint.
func (e *HTTPExtractor) WithTranscriptEndpoint(endpoint string) *HTTPExtractor {
	e.transcriptURL = endpoint
	return e
}

func (e *HTTPExtractor) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// FetchURL downloads a page and pulls out its title and main text.
func (e *HTTPExtractor) FetchURL(ctx context.Context, rawURL string) (Article, error) {
	body, err := e.get(ctx, rawURL)
	if err != nil {
		return Article{}, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return Article{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, header, aside").Remove()

	art := Article{Title: pageTitle(doc)}
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := blockText(node)
		if utf8.RuneCountInString(text) > substantialContent {
			art.Text = text
			break
		}
		if art.Text == "" {
			art.Text = text
		}
	}
	if art.Text == "" {
		var paras []string
		doc.Find("p").Each(func(_ int, s *goquery.Selection) {
			if t := collapse(s.Text()); t != "" {
				paras = append(paras, t)
			}
		})
		art.Text = strings.Join(paras, "\n\n")
	}
	if art.Text == "" {
		return Article{}, errors.New("page has no readable text")
	}
	return art, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := collapse(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if c, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return collapse(c)
	}
	return "Untitled"
}

// blockText joins block-level children with blank lines so adjacent
// paragraphs do not run together.
func blockText(sel *goquery.Selection) string {
	var parts []string
	sel.Find("h1, h2, h3, h4, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if t := collapse(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return collapse(sel.Text())
	}
	return strings.Join(parts, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// FetchTranscript downloads the caption track of a video and joins its lines.
func (e *HTTPExtractor) FetchTranscript(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", errors.New("video id is required")
	}
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", e.language)
	body, err := e.get(ctx, e.transcriptURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer body.Close()

	var tt timedText
	if err := xml.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(&tt); err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no transcript available")
		}
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	parts := make([]string, 0, len(tt.Lines))
	for _, l := range tt.Lines {
		if t := collapse(html.UnescapeString(l.Text)); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("transcript is empty")
	}
	return strings.Join(parts, " "), nil
}
