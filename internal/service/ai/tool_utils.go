package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	WebSearchRateLimit   = 3
	WebSearchRateWindow  = time.Minute
	WebSearchHTTPTimeout = 10 * time.Second

	maxPageBytes = 512 << 10
	maxPageRunes = 8000
	userAgent    = "QuizzAI-WebSearch/1.0"
)

// windowLimiter allows limit calls per key in any sliding window.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	recent := l.calls[key][:0]
	for _, at := range l.calls[key] {
		if now.Sub(at) < l.window {
			recent = append(recent, at)
		}
	}
	if len(recent) >= l.limit {
		l.calls[key] = recent
		return false
	}
	l.calls[key] = append(recent, now)
	return true
}

type toolSessionKey struct{}

// WithToolSession tags ctx with the session a tool call belongs to.
func WithToolSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolSessionKey{}, sessionID)
}

func ToolSessionFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(toolSessionKey{}).(string)
	return id, id != ""
}

// pageFetcher downloads a page and returns its visible text.
type pageFetcher struct {
	client *http.Client
}

func (f *pageFetcher) Text(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", u.Host, resp.Status)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return clip(strings.TrimSpace(string(raw))), nil
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return clip(text), nil
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxPageRunes {
		return s
	}
	return string(r[:maxPageRunes])
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
