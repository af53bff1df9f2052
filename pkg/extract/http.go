package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPChannel downloads per-year CSV exports named DO<UF><YEAR>.csv from a
// registry mirror. Downloads are paced by Limiter and, when CacheDir is set,
// kept on disk so later runs skip the network.
type HTTPChannel struct {
	// BaseURL is the directory URL holding the exports.
	BaseURL string
	// Limiter paces requests; nil means unlimited.
	Limiter *rate.Limiter
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
	// CacheDir stores downloaded exports when non-empty.
	CacheDir string
	Logger   *slog.Logger
}

// NewHTTPChannel creates a mirror channel allowing rps requests per second.
func NewHTTPChannel(baseURL string, rps float64, timeout time.Duration, cacheDir string, logger *slog.Logger) *HTTPChannel {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPChannel{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Limiter:    limiter,
		HTTPClient: &http.Client{Timeout: timeout},
		CacheDir:   cacheDir,
		Logger:     logger,
	}
}

func (c *HTTPChannel) Name() string { return "http-mirror" }

// ExportName returns the file name of one state-year export.
func ExportName(uf string, year int) string {
	return fmt.Sprintf("DO%s%d.csv", strings.ToUpper(uf), year)
}

// Extract downloads every requested year and concatenates the records.
func (c *HTTPChannel) Extract(ctx context.Context, req Request) (*Frame, error) {
	if c.BaseURL == "" {
		return nil, errors.New("http channel: BaseURL is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := &Frame{}
	for _, year := range req.Years {
		data, err := c.fetch(ctx, ExportName(req.UF, year))
		if err != nil {
			return nil, err
		}
		f, err := ReadFrame(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", ExportName(req.UF, year), err)
		}
		c.logger().Debug("downloaded export", "uf", req.UF, "year", year, "rows", f.Len())
		out.Append(f)
	}
	return out, nil
}

func (c *HTTPChannel) fetch(ctx context.Context, name string) ([]byte, error) {
	if c.CacheDir != "" {
		cached := filepath.Join(c.CacheDir, name)
		if data, err := os.ReadFile(cached); err == nil {
			c.logger().Debug("using cached export", "path", cached)
			return data, nil
		}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url := c.BaseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")

	cli := c.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 120 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(fmt.Errorf("read body: %w", err))
	}

	if c.CacheDir != "" {
		if err := writeCache(c.CacheDir, name, data); err != nil {
			c.logger().Warn("failed to cache export", "name", name, "error", err)
		}
	}
	return data, nil
}

func (c *HTTPChannel) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func writeCache(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
