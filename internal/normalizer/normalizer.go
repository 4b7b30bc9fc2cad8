// Package normalizer turns caller-supplied photos into a bounded, re-encoded
// JPEG with a content fingerprint. Identical input bytes always produce the
// same output bytes and fingerprint.
package normalizer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/tphakala/plantid/internal/logger"
)

const (
	DefaultMaxDimension  = 1024
	DefaultQuality       = 85
	DefaultMaxInputBytes = 20 << 20
	DefaultFetchTimeout  = 10 * time.Second

	// maxPixels rejects decompression bombs before a full decode.
	maxPixels = 60_000_000

	contentTypeJPEG = "image/jpeg"
)

// NormalizedImage is the canonical form handed to the rest of the pipeline.
type NormalizedImage struct {
	Data        []byte
	ContentType string
	Size        int
	Width       int
	Height      int
	Fingerprint string // hex SHA-256 of Data

	// SourceURL is set when the image was fetched from a remote URL.
	SourceURL string
}

// Input is a caller-supplied image: raw bytes, or a string holding a data
// URI, bare base64 or an http(s) URL. Exactly one field should be set.
type Input struct {
	Bytes []byte
	Ref   string
}

// FromBytes wraps raw encoded image bytes.
func FromBytes(b []byte) Input { return Input{Bytes: b} }

// FromString wraps a data URI, base64 payload or URL.
func FromString(s string) Input { return Input{Ref: s} }

// Fetcher retrieves remote images. *httpclient.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Config bounds the normalized output.
type Config struct {
	MaxDimension  int
	Quality       int
	MaxInputBytes int64
	FetchTimeout  time.Duration
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxDimension:  DefaultMaxDimension,
		Quality:       DefaultQuality,
		MaxInputBytes: DefaultMaxInputBytes,
		FetchTimeout:  DefaultFetchTimeout,
	}
}

// Normalizer is stateless apart from its configuration and safe for
// concurrent use.
type Normalizer struct {
	cfg     Config
	fetcher Fetcher
	log     logger.Logger
}

// New returns a Normalizer. fetcher may be nil, in which case URL inputs are
// rejected as unsupported.
func New(cfg Config, fetcher Fetcher, log logger.Logger) *Normalizer {
	def := DefaultConfig()
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = def.MaxInputBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if log == nil {
		log = logger.Global().Module("normalizer")
	}
	return &Normalizer{cfg: cfg, fetcher: fetcher, log: log}
}

// Normalize decodes in, bounds it to MaxDimension on the longest side and
// re-encodes it as JPEG.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*NormalizedImage, error) {
	raw, sourceURL, err := n.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	if int64(len(raw)) > n.cfg.MaxInputBytes {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("input is %d bytes, limit is %d", len(raw), n.cfg.MaxInputBytes)}
	}
	if len(raw) == 0 {
		return nil, &InvalidImageError{Reason: "empty input"}
	}

	format := Sniff(raw)
	if !format.Supported() {
		return nil, &UnsupportedFormatError{Format: format, Detail: "unrecognized content"}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &InvalidImageError{Reason: "unreadable " + string(format) + " header", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &InvalidImageError{Reason: "cannot decode " + string(format), Err: err}
	}

	dst := n.fit(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.cfg.Quality}); err != nil {
		return nil, &InvalidImageError{Reason: "re-encode failed", Err: err}
	}

	data := buf.Bytes()
	sum := sha256.Sum256(data)
	out := &NormalizedImage{
		Data:        data,
		ContentType: contentTypeJPEG,
		Size:        len(data),
		Width:       dst.Bounds().Dx(),
		Height:      dst.Bounds().Dy(),
		Fingerprint: hex.EncodeToString(sum[:]),
		SourceURL:   sourceURL,
	}

	n.log.Debug("image normalized",
		logger.String("source_format", string(format)),
		logger.Int("source_width", cfg.Width),
		logger.Int("source_height", cfg.Height),
		logger.Int("width", out.Width),
		logger.Int("height", out.Height),
		logger.Int("bytes", out.Size))

	return out, nil
}

// fit scales src so neither side exceeds MaxDimension and flattens any
// transparency onto white, since JPEG has no alpha channel.
func (n *Normalizer) fit(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), n.cfg.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// targetSize keeps the aspect ratio and never upscales.
func targetSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := max(1, int(float64(h)*float64(limit)/float64(w)+0.5))
		return limit, nh
	}
	nw := max(1, int(float64(w)*float64(limit)/float64(h)+0.5))
	return nw, limit
}

// resolve turns in into encoded image bytes. The second return value is the
// source URL for fetched images.
func (n *Normalizer) resolve(ctx context.Context, in Input) ([]byte, string, error) {
	if in.Bytes != nil {
		return in.Bytes, "", nil
	}

	ref := strings.TrimSpace(in.Ref)
	switch {
	case ref == "":
		return nil, "", &UnsupportedFormatError{Detail: "no image supplied"}
	case strings.HasPrefix(ref, "data:"):
		data, err := decodeDataURI(ref)
		return data, "", err
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err := n.fetch(ctx, ref)
		return data, ref, err
	}

	data, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		return nil, "", &UnsupportedFormatError{Detail: "expected a data URI, base64 payload or http(s) URL"}
	}
	return data, "", nil
}

// decodeDataURI accepts data:image/<fmt>;base64,<payload>.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, &UnsupportedFormatError{Detail: "malformed data URI"}
	}
	mediaType := strings.TrimPrefix(header, "data:")
	if !strings.HasPrefix(mediaType, "image/") || !strings.HasSuffix(mediaType, ";base64") {
		return nil, &UnsupportedFormatError{Detail: "data URI must be a base64 image"}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip padding
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, &InvalidImageError{Reason: "bad base64 payload", Err: err}
		}
	}
	return data, nil
}

func (n *Normalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	if n.fetcher == nil {
		return nil, &UnsupportedFormatError{Detail: "remote images are disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := n.fetcher.Get(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			n.log.Debug("failed to close image response body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, n.cfg.MaxInputBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	n.log.Debug("remote image fetched",
		logger.Int("bytes", len(data)),
		logger.Duration("took", time.Since(start)))
	return data, nil
}
