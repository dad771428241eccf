package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"copyforge/internal/config"
	"copyforge/internal/journal"
)

var (
	cookieWallRe = regexp.MustCompile(`(?i)(accept (all )?cookies|cookie consent|we use cookies|gdpr|consent to the use)`)
	captchaRe    = regexp.MustCompile(`(?i)(captcha|are you a robot|unusual traffic|cf-challenge|verify you are human)`)
)

// Fetcher retrieves and classifies evidence pages.
type Fetcher struct {
	cfg    config.FetchConfig
	cache  *Cache
	client *http.Client
	log    *zap.Logger
}

// NewFetcher builds a fetcher. cache may be nil to disable caching.
func NewFetcher(cfg config.FetchConfig, cache *Cache, log *zap.Logger) *Fetcher {
	return &Fetcher{
		cfg:   cfg,
		cache: cache,
		client: &http.Client{
			Timeout: cfg.TimeoutDuration(),
		},
		log: log,
	}
}

// Fetch returns the evidence record for rawURL, from cache when fresh.
// Unusable-but-fetched pages return a Record with flags set and a nil
// error; callers consult Record.Usable. A *FetchError means the page
// could not be retrieved at all.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Record, error) {
	if err := VetURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err, Code: journal.CodeEvidenceUnavailable}
	}

	if f.cache != nil {
		if rec, ok, err := f.cache.Get(rawURL, f.cfg.CacheTTLDuration()); err != nil {
			f.log.Warn("evidence cache read failed", zap.String("url", rawURL), zap.Error(err))
		} else if ok {
			f.log.Debug("evidence cache hit", zap.String("url", rawURL))
			return rec, nil
		}
	}

	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err, Code: journal.CodeEvidenceUnavailable}
	}

	rec := f.classify(rawURL, body, contentType)
	if f.cache != nil && rec.Usable() {
		if err := f.cache.Put(rec); err != nil {
			f.log.Warn("evidence cache write failed", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return rec, nil
}

// get performs the HTTP request with jittered exponential backoff on
// transient failures.
func (f *Fetcher) get(ctx context.Context, rawURL string) (body []byte, contentType string, err error) {
	backoff := f.cfg.BackoffBaseDuration()
	attempts := f.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := jitter(backoff)
			backoff *= 2
			f.log.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(delay):
			}
		}

		body, contentType, err = f.once(ctx, rawURL)
		if err == nil {
			return body, contentType, nil
		}
		if !retryable(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("exhausted %d attempts: %w", attempts, err)
}

func (f *Fetcher) once(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &transientError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, "", &transientError{fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, "", &transientError{err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// classify builds the record and sets usability flags.
func (f *Fetcher) classify(rawURL string, body []byte, contentType string) *Record {
	sum := sha256.Sum256(body)
	rec := &Record{
		SourceURL:   rawURL,
		FetchedAt:   time.Now().UTC(),
		ContentHash: hex.EncodeToString(sum[:]),
	}

	ct := strings.ToLower(contentType)
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") &&
		!strings.Contains(ct, "application/xhtml") {
		rec.Flags.BadContentType = true
		return rec
	}

	raw := string(body)
	if captchaRe.MatchString(raw) {
		rec.Flags.CaptchaBlocked = true
	}

	blocks := extractBlocks(raw)
	chars := 0
	for _, b := range blocks {
		chars += len(b)
	}
	rec.Blocks = blocks
	rec.BlockCount = len(blocks)
	rec.CharCount = chars
	rec.SampleText = sample(blocks, 5)

	// A consent page yields almost no content blocks; only call it a
	// cookie wall when the pattern matches AND extraction came up thin.
	if cookieWallRe.MatchString(raw) && chars < f.cfg.MinChars {
		rec.Flags.CookieWalled = true
	}
	if rec.BlockCount < f.cfg.MinBlocks || chars < f.cfg.MinChars {
		rec.Flags.Thin = true
	}
	return rec
}

// extractBlocks pulls readable text blocks out of an HTML document.
func extractBlocks(raw string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	var blocks []string
	doc.Find("p, li, h1, h2, h3, td, dd").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) >= 30 {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		// Plain-text responses have no element structure; fall back to
		// paragraph splitting.
		for _, para := range strings.Split(doc.Text(), "\n\n") {
			text := strings.Join(strings.Fields(para), " ")
			if len(text) >= 30 {
				blocks = append(blocks, text)
			}
		}
	}
	return blocks
}

func sample(blocks []string, n int) string {
	if len(blocks) < n {
		n = len(blocks)
	}
	return strings.Join(blocks[:n], "\n")
}

// VetURL rejects URLs the fetcher must never dial: bad schemes,
// credentials in the URL, and loopback/private/link-local hosts.
func VetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("url must not carry credentials")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost is not a valid evidence host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("private or loopback address %s", host)
		}
	}
	return nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d)))
}
