// Package forum fetches a XenForo thread and extracts the latest post: a stable numeric
// post id, a deep link to it, and whitespace-normalized body text sized to fit a Discord
// message. Network and parse failures degrade to a nil post; the pollers treat that as
// "retry next cycle".
package forum

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// MessageLimit is the destination platform's hard message length, in characters.
const MessageLimit = 2000

var (
	pageLinkRe   = regexp.MustCompile(`page-(\d+)`)
	postIDRe     = regexp.MustCompile(`post-(\d+)`)
	anchorIDRe   = regexp.MustCompile(`#post-(\d+)`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// Post is the latest item found in a thread.
type Post struct {
	// ID is the numeric post id when one could be extracted, otherwise the page URL.
	// Either way it is stable and comparable across polls.
	ID   string
	URL  string
	Text string
}

// Scraper fetches one fixed thread.
type Scraper struct {
	client    *http.Client
	baseURL   string
	threadURL string
}

// New returns a Scraper for threadURL. Relative pagination links resolve against baseURL.
func New(client *http.Client, baseURL, threadURL string) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Scraper{client: client, baseURL: baseURL, threadURL: threadURL}
}

// ThreadURL returns the fixed thread this scraper watches.
func (s *Scraper) ThreadURL() string { return s.threadURL }

// LatestPost fetches the thread, follows pagination to the last page, and returns the
// newest post. Returns an error on network failure, non-200 status, or an empty page.
func (s *Scraper) LatestPost(ctx context.Context) (*Post, error) {
	doc, err := s.fetchDoc(ctx, s.threadURL)
	if err != nil {
		return nil, err
	}

	pageURL := s.threadURL
	if href := lastPageHref(doc); href != "" {
		resolved, err := s.resolve(href)
		if err == nil && resolved != pageURL {
			slog.Debug("forum: following last page", slog.String("url", resolved))
			doc, err = s.fetchDoc(ctx, resolved)
			if err != nil {
				return nil, err
			}
			pageURL = resolved
		}
	}

	posts := doc.Find("article.message")
	if posts.Length() == 0 {
		return nil, fmt.Errorf("no posts found at %s", pageURL)
	}
	last := posts.Last()

	id := extractPostID(last)
	postURL := pageURL
	if id != "" {
		postURL = pageURL + "#post-" + id
	}

	text := extractBody(last)

	p := &Post{ID: id, URL: postURL, Text: text}
	if p.ID == "" {
		// Degrades detection granularity to per-page, but stays monotonic per URL.
		p.ID = postURL
	}
	return p, nil
}

func (s *Scraper) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", userAgent)
			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if err := resp.Body.Close(); err != nil {
					slog.Warn("failed to close response body", slog.Any("err", err))
				}
			}()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d from %s", resp.StatusCode, pageURL)
			}
			doc, err = goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("parse html: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("forum: retrying fetch", slog.Uint64("attempt", uint64(n)), slog.Any("err", err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Scraper) resolve(href string) (string, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// lastPageHref returns the href of the highest-numbered "page-N" pagination link, or "".
func lastPageHref(doc *goquery.Document) string {
	nav := doc.Find("nav.pageNav")
	scope := nav.First()
	if nav.Length() == 0 {
		scope = doc.Selection
	}
	best := ""
	bestNum := 0
	scope.Find("a[href*='page-']").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := pageLinkRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n >= bestNum {
			bestNum = n
			best = href
		}
	})
	return best
}

// extractPostID pulls the numeric post id from the message element's id/data attributes,
// falling back to an in-page "#post-<digits>" anchor.
func extractPostID(post *goquery.Selection) string {
	for _, attr := range []string{"id", "data-content"} {
		if v, ok := post.Attr(attr); ok {
			if m := postIDRe.FindStringSubmatch(v); m != nil {
				return m[1]
			}
		}
	}
	id := ""
	post.Find("a[href*='#post-']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		if m := anchorIDRe.FindStringSubmatch(href); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	return id
}

// extractBody returns the post body text, preferring the bbWrapper content block,
// with blank-line runs collapsed and trailing space stripped before newlines.
func extractBody(post *goquery.Selection) string {
	body := post.Find(".message-content .bbWrapper").First()
	if body.Length() == 0 {
		body = post.Find(".bbWrapper").First()
	}
	var text string
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = post.Text()
	}
	return NormalizeText(text)
}

// NormalizeText collapses whitespace the way the notifier expects: trailing
// spaces/tabs before newlines removed, runs of 3+ newlines collapsed to a blank line.
func NormalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = trailingWSRe.ReplaceAllString(text, "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return text
}

// TruncateForMessage bounds text so that prefix + url + "\n\n" + text fits MessageLimit.
// Truncation is rune-safe and marked with a trailing "...".
func TruncateForMessage(text, prefix, itemURL string) string {
	overhead := len([]rune(prefix)) + len([]rune(itemURL)) + 2
	budget := MessageLimit - overhead
	if budget < 0 {
		budget = 0
	}
	r := []rune(text)
	if len(r) <= budget {
		return text
	}
	if budget >= 3 {
		return string(r[:budget-3]) + "..."
	}
	return string(r[:budget])
}
