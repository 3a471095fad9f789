package palette

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxImageBytes bounds how much of a remote image is read.
	DefaultMaxImageBytes = 10 << 20
	// DefaultMaxImagePixels bounds width*height of a remote image.
	DefaultMaxImagePixels = 40_000_000
	// DefaultFetchTimeout bounds a single image fetch.
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrBlockedAddress is returned for image URLs that resolve to loopback,
	// private, link-local or otherwise internal addresses.
	ErrBlockedAddress = errors.New("address not allowed")
	// ErrImageTooLarge is returned when an image declares too many pixels.
	ErrImageTooLarge = errors.New("image too large")
)

// Extractor loads remote images and derives their palettes.
type Extractor struct {
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	maxBytes  int64
	maxPixels int
	logger    *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithHTTPClient sets the HTTP client used to fetch images. The client is
// used as is: internal addresses are only refused by the default client.
func WithHTTPClient(c *http.Client) ExtractorOption {
	return func(e *Extractor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithRateLimit limits outbound image fetches to rps requests per second.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ExtractorOption {
	return func(e *Extractor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxImageBytes bounds the size of a fetched image.
func WithMaxImageBytes(n int64) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// WithMaxImagePixels bounds width*height of a fetched image.
func WithMaxImagePixels(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

// WithFetchTimeout sets the per-image timeout of the default client.
func WithFetchTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExtractor creates an Extractor. Without options it fetches with a 10
// second timeout, refuses internal addresses and does not rate limit.
func NewExtractor(logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		timeout:   DefaultFetchTimeout,
		maxBytes:  DefaultMaxImageBytes,
		maxPixels: DefaultMaxImagePixels,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = newPublicClient(e.timeout)
	}
	return e
}

// newPublicClient returns a client that only connects to public addresses.
// The check runs on the resolved IP at dial time, so it also covers DNS names
// and redirects pointing inside the network.
func newPublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: refuseInternal,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return checkScheme(req.URL)
		},
	}
}

func refuseInternal(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !isPublic(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified()
}

func checkScheme(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlockedAddress, u.Scheme)
	}
	return nil
}

// Extract fetches imageURL and returns its palette, or Fallback when the image
// cannot be loaded or decoded.
func (e *Extractor) Extract(ctx context.Context, imageURL string) Palette {
	img, err := e.load(ctx, imageURL)
	if err != nil {
		e.logger.Debug("palette fallback",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		return Fallback
	}
	return FromImage(img)
}

func (e *Extractor) load(ctx context.Context, imageURL string) (image.Image, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := checkScheme(req.URL); err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, e.maxBytes)
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(body, &head))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > e.maxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(io.MultiReader(&head, body))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
