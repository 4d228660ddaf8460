package moderation

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/resilience"
	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)
	htmlImageRe     = regexp.MustCompile(`(?i)<img\b[^>]*\ssrc\s*=\s*["']([^"']+)["']`)
)

// ExtractImageURLs returns embedded image sources in document order,
// markdown images first, then HTML <img> tags.
func ExtractImageURLs(markdown string) []string {
	var urls []string
	for _, m := range markdownImageRe.FindAllStringSubmatch(markdown, -1) {
		urls = append(urls, strings.TrimSpace(m[1]))
	}
	for _, m := range htmlImageRe.FindAllStringSubmatch(markdown, -1) {
		urls = append(urls, strings.TrimSpace(m[1]))
	}
	return urls
}

// headResult is what a HEAD request learned about a remote image
type headResult struct {
	contentType   string
	contentLength int64
}

// ImageGuard validates images embedded in markdown
type ImageGuard struct {
	cfg     config.ModerationConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[headResult]
	exts    map[string]bool
	logger  *zap.Logger
}

// NewImageGuard creates an image guard; a nil client gets a default one
func NewImageGuard(cfg config.ModerationConfig, client *http.Client) *ImageGuard {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = 3 * time.Second
	}
	exts := make(map[string]bool, len(cfg.ImageExtensions))
	for _, e := range cfg.ImageExtensions {
		exts[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")] = true
	}
	return &ImageGuard{
		cfg:     cfg,
		client:  client,
		breaker: resilience.NewBreaker[headResult](resilience.BreakerConfig{Name: "image-head"}),
		exts:    exts,
		logger:  logging.WithComponent("image-guard"),
	}
}

// Check validates every embedded image of markdown. Only explicit violations
// reject; network trouble during the HEAD request never does.
func (g *ImageGuard) Check(ctx context.Context, markdown string) error {
	for _, raw := range ExtractImageURLs(markdown) {
		if err := g.checkOne(ctx, raw); err != nil {
			metrics.ModerationRejectionsTotal.WithLabelValues("image").Inc()
			return err
		}
	}
	return nil
}

// NormalizeImageURL resolves protocol-relative links to https and rejects
// anything that is not an absolute http(s) URL.
func NormalizeImageURL(raw string) (*url.URL, error) {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, apperr.ImageRejected(raw, "Image links must be absolute http(s) URLs.")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, nil
	}
	return nil, apperr.ImageRejected(raw, "Image links must be absolute http(s) URLs.")
}

func (g *ImageGuard) checkOne(ctx context.Context, raw string) error {
	u, err := NormalizeImageURL(raw)
	if err != nil {
		return err
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if len(g.exts) > 0 && !g.exts[ext] {
		return apperr.ImageRejected(raw, fmt.Sprintf("Image links must end in one of: %s.", strings.Join(g.cfg.ImageExtensions, ", ")))
	}

	if !g.cfg.HeadCheckEnabled {
		return nil
	}

	res, err := g.breaker.Execute(func() (headResult, error) {
		return g.head(ctx, u.String())
	})
	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "skipped"
		}
		metrics.OutboundChecksTotal.WithLabelValues("image_head", result).Inc()
		g.logger.Debug("Image HEAD check inconclusive", zap.String("url", u.String()), zap.Error(err))
		return nil
	}
	metrics.OutboundChecksTotal.WithLabelValues("image_head", "ok").Inc()

	if res.contentType != "" {
		if !strings.HasPrefix(res.contentType, "image/") {
			return apperr.ImageRejected(raw, "Linked file is not an image.")
		}
		if res.contentType == "image/svg+xml" {
			return apperr.ImageRejected(raw, "SVG images are not allowed.")
		}
	}

	isGIF := res.contentType == "image/gif" || (res.contentType == "" && ext == "gif")
	limit, label := g.cfg.RemoteMaxImageBytes, "Image"
	if isGIF {
		limit, label = g.cfg.RemoteMaxGIFBytes, "GIF"
	}
	if limit > 0 && res.contentLength > limit {
		return apperr.ImageRejected(raw, fmt.Sprintf("%s too large (max %s).", label, humanBytes(limit)))
	}
	return nil
}

// head sends a HEAD request to the URL. Non-2xx answers carry no usable headers and yield an
// empty result rather than an error, so they neither reject nor trip the breaker.
func (g *ImageGuard) head(ctx context.Context, target string) (headResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return headResult{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return headResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return headResult{}, nil
	}

	var res headResult
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			res.contentType = strings.ToLower(mt)
		}
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			res.contentLength = n
		}
	}
	return res, nil
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1024:
		return fmt.Sprintf("%d KB", n/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
