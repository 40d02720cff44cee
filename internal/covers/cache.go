// Package covers keeps local copies of book cover images so the API can
// serve them without hitting the original host on every request.
package covers

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

const DefaultMaxBytes = 5 << 20

// ErrFetchFailed means the cover host could not produce a usable image.
var ErrFetchFailed = errors.New("cover fetch failed")

// Cover is a cached image on disk.
type Cover struct {
	Path        string
	ContentType string
}

type Cache struct {
	dir        string
	httpClient *http.Client
	maxBytes   int64
	group      singleflight.Group
}

type Option func(*Cache)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.httpClient = client }
}

func WithMaxBytes(n int64) Option {
	return func(c *Cache) { c.maxBytes = n }
}

// NewCache creates the cache directory if needed.
func NewCache(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cover cache dir: %w", err)
	}
	c := &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached cover for the book, downloading coverURL on a miss.
// Concurrent misses for the same book and URL share one download.
func (c *Cache) Get(ctx context.Context, bookID uint, coverURL string) (*Cover, error) {
	coverURL = strings.TrimSpace(coverURL)
	if coverURL == "" {
		return nil, fmt.Errorf("%w: book %d has no cover", apperrors.ErrNotFound, bookID)
	}
	if err := checkURL(coverURL); err != nil {
		return nil, err
	}

	prefix := c.prefix(bookID, coverURL)
	if cover := c.lookup(prefix); cover != nil {
		return cover, nil
	}

	v, err, _ := c.group.Do(prefix, func() (interface{}, error) {
		if cover := c.lookup(prefix); cover != nil {
			return cover, nil
		}
		return c.fetch(ctx, coverURL, prefix)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cover), nil
}

// Invalidate removes every cached cover of the book.
func (c *Cache) Invalidate(bookID uint) error {
	matches, err := filepath.Glob(filepath.Join(c.dir, fmt.Sprintf("cover_%d_*", bookID)))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// prefix names the cache entry; the extension is appended once the image
// type is known.
func (c *Cache) prefix(bookID uint, coverURL string) string {
	hash := sha256.Sum256([]byte(coverURL))
	return fmt.Sprintf("cover_%d_%x", bookID, hash[:8])
}

func (c *Cache) lookup(prefix string) *Cover {
	matches, err := filepath.Glob(filepath.Join(c.dir, prefix+".*"))
	if err != nil || len(matches) == 0 {
		return nil
	}
	path := matches[0]
	return &Cover{Path: path, ContentType: mimeForExt(filepath.Ext(path))}
}

func (c *Cache) fetch(ctx context.Context, coverURL, prefix string) (*Cover, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", "campuslib/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(c.dir, "cover_tmp_")
	if err != nil {
		return nil, err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmpFile, io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if n > c.maxBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrFetchFailed, c.maxBytes)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, err
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: got %s, not an image", ErrFetchFailed, mtype.String())
	}

	path := filepath.Join(c.dir, prefix+mtype.Extension())
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, err
	}
	return &Cover{Path: path, ContentType: mtype.String()}, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: cover_url must be an http(s) URL", apperrors.ErrValidation)
	}
	return nil
}

var extMimes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
}

func mimeForExt(ext string) string {
	if m, ok := extMimes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}
