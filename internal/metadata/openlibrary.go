// Package metadata looks up bibliographic details for catalog entries.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

const (
	DefaultBaseURL   = "https://openlibrary.org"
	DefaultCoversURL = "https://covers.openlibrary.org"
)

// BookInfo is what a lookup knows about an edition.
type BookInfo struct {
	Title    string
	Author   string
	ISBN     string
	CoverURL string
}

// OpenLibraryClient fetches edition data from the OpenLibrary API, at most
// one request per interval.
type OpenLibraryClient struct {
	httpClient *http.Client
	baseURL    string
	coversURL  string
	throttle   *throttle
}

type Option func(*OpenLibraryClient)

func WithBaseURL(baseURL, coversURL string) Option {
	return func(c *OpenLibraryClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
		c.coversURL = strings.TrimRight(coversURL, "/")
	}
}

func WithInterval(interval time.Duration) Option {
	return func(c *OpenLibraryClient) { c.throttle.interval = interval }
}

func NewOpenLibraryClient(opts ...Option) *OpenLibraryClient {
	c := &OpenLibraryClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		coversURL:  DefaultCoversURL,
		throttle:   &throttle{interval: time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupISBN returns the edition with the given ISBN-10 or ISBN-13.
// Unknown ISBNs fail with apperrors.ErrNotFound.
func (c *OpenLibraryClient) LookupISBN(ctx context.Context, isbn string) (*BookInfo, error) {
	normalized := NormalizeISBN(isbn)
	if normalized == "" {
		return nil, fmt.Errorf("%w: %q is not an ISBN-10 or ISBN-13", apperrors.ErrValidation, isbn)
	}

	var edition struct {
		Title   string `json:"title"`
		Authors []struct {
			Key string `json:"key"`
		} `json:"authors"`
		Covers []int `json:"covers"`
	}
	if err := c.getJSON(ctx, "/isbn/"+normalized+".json", &edition); err != nil {
		return nil, fmt.Errorf("lookup isbn %s: %w", normalized, err)
	}

	info := &BookInfo{
		Title: strings.TrimSpace(edition.Title),
		ISBN:  normalized,
	}
	if len(edition.Covers) > 0 && edition.Covers[0] > 0 {
		info.CoverURL = fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.coversURL, normalized)
	}

	// A missing author is not worth failing the lookup for.
	if len(edition.Authors) > 0 && edition.Authors[0].Key != "" {
		var author struct {
			Name string `json:"name"`
		}
		if err := c.getJSON(ctx, edition.Authors[0].Key+".json", &author); err == nil {
			info.Author = strings.TrimSpace(author.Name)
		}
	}
	return info, nil
}

func (c *OpenLibraryClient) getJSON(ctx context.Context, path string, dst any) error {
	if err := c.throttle.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "campuslib/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// NormalizeISBN strips hyphens and spaces; it returns "" unless 10 or 13
// characters remain.
func NormalizeISBN(isbn string) string {
	isbn = strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn))
	if len(isbn) != 10 && len(isbn) != 13 {
		return ""
	}
	return strings.ToUpper(isbn)
}

type throttle struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if delay := t.interval - time.Since(t.lastCall); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	t.lastCall = time.Now()
	return nil
}
