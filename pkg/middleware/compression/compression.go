// Package compression negotiates brotli or gzip encoding for response bodies.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/nimburion/listquery/pkg/server/router"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// Config controls response compression.
type Config struct {
	Enabled              bool
	EnableGzip           bool
	EnableBrotli         bool
	GzipLevel            int
	BrotliLevel          int
	MinSize              int
	ContentTypes         []string
	ExcludedPathPrefixes []string
}

// DefaultConfig compresses JSON and text bodies of at least 1 KiB.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		EnableGzip:           true,
		EnableBrotli:         true,
		GzipLevel:            gzip.DefaultCompression,
		BrotliLevel:          4,
		MinSize:              1024,
		ContentTypes:         []string{"application/json", "text/"},
		ExcludedPathPrefixes: []string{"/metrics"},
	}
}

// Middleware wraps the response writer when the client accepts br or gzip.
// Bodies smaller than MinSize, or of a non-listed content type, pass through.
func Middleware(cfg Config) router.MiddlewareFunc {
	cfg = normalizeConfig(cfg)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if !cfg.Enabled || req.Method == http.MethodHead || isExcludedPath(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			encoding := negotiateEncoding(req.Header.Get("Accept-Encoding"), cfg)
			if encoding == "" {
				return next(c)
			}
			appendVary(c.Response().Header(), "Accept-Encoding")

			w := &compressWriter{base: c.Response(), encoding: encoding, cfg: cfg}
			c.SetResponse(w)
			err := next(c)
			if closeErr := w.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		}
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.GzipLevel == 0 {
		cfg.GzipLevel = def.GzipLevel
	}
	if cfg.BrotliLevel <= 0 {
		cfg.BrotliLevel = def.BrotliLevel
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = def.ContentTypes
	}
	return cfg
}

func isExcludedPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.TrimSpace(prefix) != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// negotiateEncoding picks the enabled encoding with the highest q-value.
// Brotli wins ties.
func negotiateEncoding(acceptEncoding string, cfg Config) string {
	if strings.TrimSpace(acceptEncoding) == "" {
		return ""
	}
	qAny, hasAny := quality(acceptEncoding, "*")

	best, bestQ := "", 0.0
	if cfg.EnableBrotli {
		q, ok := quality(acceptEncoding, encodingBrotli)
		if !ok && hasAny {
			q, ok = qAny, true
		}
		if ok && q > 0 {
			best, bestQ = encodingBrotli, q
		}
	}
	if cfg.EnableGzip {
		q, ok := quality(acceptEncoding, encodingGzip)
		if !ok && hasAny {
			q, ok = qAny, true
		}
		if ok && q > bestQ {
			best = encodingGzip
		}
	}
	return best
}

func quality(acceptEncoding, encoding string) (float64, bool) {
	for _, part := range strings.Split(acceptEncoding, ",") {
		sections := strings.Split(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(sections[0]), encoding) {
			continue
		}
		q := 1.0
		for _, section := range sections[1:] {
			kv := strings.SplitN(strings.TrimSpace(section), "=", 2)
			if len(kv) != 2 || !strings.EqualFold(kv[0], "q") {
				continue
			}
			if parsed, err := strconv.ParseFloat(kv[1], 64); err == nil {
				q = parsed
			}
		}
		return q, true
	}
	return 0, false
}

// compressWriter buffers up to MinSize bytes before deciding whether to
// compress, so small bodies keep their Content-Length.
type compressWriter struct {
	base     router.ResponseWriter
	encoding string
	cfg      Config

	status   int
	decided  bool
	compress bool
	encoder  io.WriteCloser
	buffer   bytes.Buffer
}

func (w *compressWriter) Header() http.Header {
	return w.base.Header()
}

func (w *compressWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	if noBodyStatus(code) {
		w.decided = true
		w.base.WriteHeader(code)
	}
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if w.decided {
		if w.compress {
			return w.encoder.Write(p)
		}
		return w.base.Write(p)
	}

	w.buffer.Write(p)
	if w.buffer.Len() < w.cfg.MinSize {
		return len(p), nil
	}
	if err := w.decide(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *compressWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *compressWriter) Written() bool {
	return w.status != 0 || w.base.Written()
}

// Close flushes any buffered body and finishes the encoder.
func (w *compressWriter) Close() error {
	if !w.decided {
		if w.status == 0 {
			return nil
		}
		if err := w.decide(); err != nil {
			return err
		}
	}
	if w.encoder != nil {
		return w.encoder.Close()
	}
	return nil
}

func (w *compressWriter) decide() error {
	w.decided = true
	header := w.Header()
	contentType := strings.ToLower(header.Get("Content-Type"))
	w.compress = w.buffer.Len() >= w.cfg.MinSize &&
		header.Get("Content-Encoding") == "" &&
		compressible(contentType, w.cfg.ContentTypes)

	if !w.compress {
		w.base.WriteHeader(w.Status())
		if w.buffer.Len() == 0 {
			return nil
		}
		_, err := w.base.Write(w.buffer.Bytes())
		w.buffer.Reset()
		return err
	}

	header.Del("Content-Length")
	header.Set("Content-Encoding", w.encoding)
	w.base.WriteHeader(w.Status())

	switch w.encoding {
	case encodingBrotli:
		w.encoder = brotli.NewWriterLevel(w.base, w.cfg.BrotliLevel)
	default:
		gz, err := gzip.NewWriterLevel(w.base, w.cfg.GzipLevel)
		if err != nil {
			return fmt.Errorf("create gzip writer: %w", err)
		}
		w.encoder = gz
	}
	_, err := w.encoder.Write(w.buffer.Bytes())
	w.buffer.Reset()
	return err
}

func noBodyStatus(code int) bool {
	return code == http.StatusNoContent || code == http.StatusNotModified || (code >= 100 && code < 200)
}

func compressible(contentType string, allow []string) bool {
	if contentType == "" {
		return false
	}
	for _, prefix := range allow {
		if strings.HasPrefix(contentType, strings.ToLower(strings.TrimSpace(prefix))) {
			return true
		}
	}
	return false
}

func appendVary(header http.Header, value string) {
	current := header.Get("Vary")
	if current == "" {
		header.Set("Vary", value)
		return
	}
	for _, part := range strings.Split(current, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}
	header.Set("Vary", current+", "+value)
}
