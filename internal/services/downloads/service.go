package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
)

// ErrTooLarge is returned when a download exceeds Config.MaxBytes
var ErrTooLarge = errors.New("download exceeds size limit")

// ErrNotImage is returned when the payload is not an image
var ErrNotImage = errors.New("not an image")

// StatusError is returned when the server answers with anything but 200
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "HTTP " + e.Status
}

// transient marks a failed attempt that may succeed when repeated
type transient struct {
	err error
}

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

// Config holds download settings
type Config struct {
	UserAgent string
	MaxBytes  int64 // 0 disables the limit

	MaxRetries   int           // Extra attempts after a transient failure
	RetryBackoff time.Duration // Delay before the first retry; doubles per attempt
}

// NewConfig derives download settings from the application config
func NewConfig(cfg *common.Config) Config {
	return Config{
		UserAgent:    cfg.Downloads.UserAgent,
		MaxBytes:     cfg.Downloads.MaxBytes,
		MaxRetries:   cfg.Downloads.MaxRetries,
		RetryBackoff: common.ParseDuration(cfg.Downloads.RetryBackoff, 500*time.Millisecond),
	}
}

// Service implements interfaces.DownloadService over net/http
type Service struct {
	config Config
	client *http.Client
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.DownloadService = (*Service)(nil)

// NewService creates a new download service. Timeouts come from the caller's context.
func NewService(config Config, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		client: &http.Client{},
		logger: logger,
	}
}

// Download starts fetching url into destDir on its own goroutine
func (s *Service) Download(ctx context.Context, url string, destDir string) interfaces.DownloadHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{
		cancel: cancel,
		done:   make(chan struct{}),
		result: interfaces.DownloadResult{Err: errors.New("download aborted")},
	}
	h.total.Store(-1)

	common.SafeGo(s.logger, "download", func() {
		defer close(h.done)
		defer cancel()

		path, err := s.fetchWithRetry(ctx, h, url, destDir)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = fmt.Errorf("%w: %v", ctxErr, err)
			}
			s.logger.Debug().Err(err).Str("url", url).Msg("Download failed")
			h.result = interfaces.DownloadResult{Err: err}
			return
		}
		h.result = interfaces.DownloadResult{Success: true, FilePath: path}
	})

	return h
}

// fetchWithRetry repeats fetch after network errors, 5xx and 429 responses
// with exponential backoff. Content and size rejections are final.
func (s *Service) fetchWithRetry(ctx context.Context, h *handle, url, destDir string) (string, error) {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		path, err := s.fetch(ctx, h, url, destDir)
		if err == nil {
			return path, nil
		}

		var t transient
		if attempt >= s.config.MaxRetries || ctx.Err() != nil || !errors.As(err, &t) {
			return "", err
		}

		s.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying download")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("cancelled during backoff: %w", ctx.Err())
		}
		backoff *= 2

		h.received.Store(0)
		h.total.Store(-1)
	}
}

func (s *Service) fetch(ctx context.Context, h *handle, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", transient{fmt.Errorf("download: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", transient{statusErr}
		}
		return "", statusErr
	}
	if s.config.MaxBytes > 0 && resp.ContentLength > s.config.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}
	h.total.Store(resp.ContentLength)

	name := uuid.New().String()
	partial := filepath.Join(destDir, name+".part")
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if err := s.copy(ctx, h, f, resp.Body); err != nil {
		f.Close()
		os.Remove(partial)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("write: %w", err)
	}

	mime, err := mimetype.DetectFile(partial)
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("detect type: %w", err)
	}
	if !strings.HasPrefix(mime.String(), "image/") {
		os.Remove(partial)
		return "", fmt.Errorf("%w: %s", ErrNotImage, mime.String())
	}

	path := filepath.Join(destDir, name+mime.Extension())
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("rename: %w", err)
	}

	s.logger.Debug().
		Str("url", url).
		Str("path", path).
		Str("mime", mime.String()).
		Int64("size", h.received.Load()).
		Msg("Image downloaded")
	return path, nil
}

// copy streams body into f, honouring pause and the size limit
func (s *Service) copy(ctx context.Context, h *handle, f io.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := h.gate(ctx); err != nil {
			return err
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			received := h.received.Add(int64(n))
			if s.config.MaxBytes > 0 && received > s.config.MaxBytes {
				return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.config.MaxBytes)
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return transient{fmt.Errorf("read: %w", readErr)}
		}
	}
}

// handle implements interfaces.DownloadHandle
type handle struct {
	cancel   context.CancelFunc
	received atomic.Int64
	total    atomic.Int64

	mu      sync.Mutex
	resumed chan struct{} // Non-nil while paused; closed on resume

	done   chan struct{}
	result interfaces.DownloadResult
}

func (h *handle) Progress() interfaces.DownloadProgress {
	h.mu.Lock()
	paused := h.resumed != nil
	h.mu.Unlock()
	return interfaces.DownloadProgress{
		BytesReceived: h.received.Load(),
		TotalBytes:    h.total.Load(),
		Paused:        paused,
	}
}

func (h *handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resumed == nil {
		h.resumed = make(chan struct{})
	}
}

func (h *handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resumed != nil {
		close(h.resumed)
		h.resumed = nil
	}
}

func (h *handle) Cancel() {
	h.cancel()
}

func (h *handle) Wait() interfaces.DownloadResult {
	<-h.done
	return h.result
}

// gate blocks while the download is paused
func (h *handle) gate(ctx context.Context) error {
	h.mu.Lock()
	resumed := h.resumed
	h.mu.Unlock()
	if resumed == nil {
		return ctx.Err()
	}
	select {
	case <-resumed:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
