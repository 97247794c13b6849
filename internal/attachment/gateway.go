// Package attachment turns files attached to chat messages into model
// content parts.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"threadbot/internal/domain"
	"threadbot/internal/metrics"
)

// ResponseFilename is the name of uploaded overflow replies. Such files are
// fed back verbatim.
const ResponseFilename = "llm_response.txt"

const defaultMaxBytes = 20 << 20

var (
	// ErrNoURL means the file reference carries nothing to download.
	ErrNoURL = errors.New("attachment: no download url")
	// ErrTooLarge means the file exceeds the configured size limit.
	ErrTooLarge = errors.New("attachment: file too large")
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Fetcher  domain.FileFetcher
	Cache    *Cache // optional
	MaxBytes int64  // 0 = 20 MiB
	Logger   *slog.Logger
}

// Gateway implements domain.AttachmentGateway.
type Gateway struct {
	fetcher  domain.FileFetcher
	cache    *Cache
	maxBytes int64
	logger   *slog.Logger
	group    singleflight.Group
}

// NewGateway creates a gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Gateway{
		fetcher:  cfg.Fetcher,
		cache:    cfg.Cache,
		maxBytes: cfg.MaxBytes,
		logger:   cfg.Logger,
	}
}

// Resolve maps a file to a content part: images and PDFs as binary parts,
// text files as labelled text, anything else as a placeholder line.
func (g *Gateway) Resolve(ctx context.Context, ref domain.FileRef) (domain.ContentPart, error) {
	mime := strings.ToLower(ref.MimeType)

	switch {
	case ref.Name == ResponseFilename:
		data, err := g.fetch(ctx, ref)
		if err != nil {
			return domain.ContentPart{}, err
		}
		return domain.TextPart(string(data)), nil

	case strings.HasPrefix(mime, "image/"):
		data, err := g.fetch(ctx, ref)
		if err != nil {
			return domain.ContentPart{}, err
		}
		// Thumbnails may not share the original's format.
		if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
			mime = sniffed
		}
		return domain.ContentPart{Kind: domain.PartImage, Data: data, MediaType: mime}, nil

	case mime == "application/pdf":
		data, err := g.fetch(ctx, ref)
		if err != nil {
			return domain.ContentPart{}, err
		}
		return domain.ContentPart{Kind: domain.PartDocument, Data: data, MediaType: mime}, nil

	case strings.HasPrefix(mime, "text/"):
		data, err := g.fetch(ctx, ref)
		if err != nil {
			return domain.ContentPart{}, err
		}
		pretty := ref.PrettyType
		if pretty == "" {
			pretty = mime
		}
		return domain.TextPart(fmt.Sprintf("[%s content from %s]:\n\n%s", pretty, ref.Name, data)), nil

	default:
		return domain.TextPart(fmt.Sprintf("[Attached file: %s]\n", ref.Name)), nil
	}
}

// fetch tries each candidate URL in order and returns the first success.
func (g *Gateway) fetch(ctx context.Context, ref domain.FileRef) ([]byte, error) {
	if len(ref.URLs) == 0 {
		return nil, fmt.Errorf("%s: %w", ref.Name, ErrNoURL)
	}
	// Images carry a downscaled thumbnail URL first, so only the download
	// itself can tell whether it fits.
	if g.maxBytes > 0 && int64(ref.Size) > g.maxBytes && !strings.HasPrefix(strings.ToLower(ref.MimeType), "image/") {
		return nil, fmt.Errorf("%s is %s: %w", ref.Name, humanize.Bytes(uint64(ref.Size)), ErrTooLarge)
	}

	var errs []error
	for _, url := range ref.URLs {
		data, err := g.fetchURL(ctx, url)
		if err == nil {
			g.logger.Debug("attachment resolved",
				"file", ref.Name,
				"mime", ref.MimeType,
				"size", humanize.Bytes(uint64(len(data))),
			)
			return data, nil
		}
		errs = append(errs, err)
		if errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			break
		}
	}
	metrics.AttachmentsTotal.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("download %s: %w", ref.Name, errors.Join(errs...))
}

func (g *Gateway) fetchURL(ctx context.Context, url string) ([]byte, error) {
	if g.cache != nil {
		data, ok, err := g.cache.Get(ctx, url)
		switch {
		case err != nil:
			g.logger.Warn("attachment cache read failed", "err", err)
		case ok:
			metrics.AttachmentsTotal.WithLabelValues("hit").Inc()
			return data, nil
		}
	}

	v, err, _ := g.group.Do(url, func() (any, error) {
		data, err := g.download(ctx, url)
		if err != nil {
			return nil, err
		}
		metrics.AttachmentsTotal.WithLabelValues("miss").Inc()
		if g.cache != nil {
			if err := g.cache.Put(ctx, url, data); err != nil {
				g.logger.Warn("attachment cache write failed", "err", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (g *Gateway) download(ctx context.Context, url string) ([]byte, error) {
	if g.fetcher == nil {
		return nil, errors.New("attachment: no file fetcher configured")
	}
	buf := &limitedBuffer{max: g.maxBytes}
	if err := g.fetcher.Download(ctx, url, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// limitedBuffer fails writes past max bytes.
type limitedBuffer struct {
	bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && int64(b.Len()+len(p)) > b.max {
		return 0, ErrTooLarge
	}
	return b.Buffer.Write(p)
}
