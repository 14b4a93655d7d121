package reporter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/shared/id"
)

// IntakePath is the ndjson events endpoint
const IntakePath = "/intake/v2/events"

const reporterHTTP = "http"

// HTTPConfig configures the intake client
type HTTPConfig struct {
	ServerURL   string
	SecretToken string
	Timeout     time.Duration
	// MaxRequestSize triggers a send once the buffered body reaches it
	MaxRequestSize int
	// RequestRate bounds requests per second; <= 0 is unlimited
	RequestRate  float64
	RequestBurst int
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Compress     bool
	Metadata     model.Metadata
}

// HTTP buffers events as ndjson and posts them to an intake server
type HTTP struct {
	cfg     HTTPConfig
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// metadataLine prefixes every request body
	metadataLine []byte

	mu     sync.Mutex
	buf    bytes.Buffer
	count  int
	closed bool

	// sendMu keeps request bodies in submission order
	sendMu sync.Mutex
}

// NewHTTP creates an intake reporter
func NewHTTP(cfg HTTPConfig, logger *zap.Logger, metrics *monitoring.Metrics) (*HTTP, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("http reporter: server url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 768 * 1024
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = 5 * time.Second
	}

	metadataLine, err := sonic.Marshal(struct {
		Metadata model.Metadata `json:"metadata"`
	}{cfg.Metadata})
	if err != nil {
		return nil, fmt.Errorf("http reporter: encode metadata: %w", err)
	}

	// Create underlying retryable client
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(cfg.ServerURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", AgentName+"/"+AgentVersion).
		SetHeader("Content-Type", "application/x-ndjson")
	if cfg.SecretToken != "" {
		restyClient.SetAuthToken(cfg.SecretToken)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestRate > 0 {
		burst := cfg.RequestBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestRate), burst)
	}

	h := &HTTP{
		cfg:          cfg,
		client:       restyClient,
		limiter:      limiter,
		logger:       logger,
		metrics:      metrics,
		metadataLine: append(metadataLine, '\n'),
	}
	h.breaker = resilience.New("intake", resilience.Settings{
		FailureThreshold: 1,
		BaseTimeout:      time.Second,
		MaxTimeout:       36 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("intake circuit breaker changed state",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return h, nil
}

// SendTransaction buffers tx
func (h *HTTP) SendTransaction(ctx context.Context, tx *model.Transaction) error {
	return h.enqueue(ctx, struct {
		Transaction *model.Transaction `json:"transaction"`
	}{tx})
}

// SendSpan buffers span
func (h *HTTP) SendSpan(ctx context.Context, span *model.Span) error {
	return h.enqueue(ctx, struct {
		Span *model.Span `json:"span"`
	}{span})
}

func (h *HTTP) enqueue(ctx context.Context, line interface{}) error {
	data, err := sonic.Marshal(line)
	if err != nil {
		return fmt.Errorf("http reporter: encode event: %w", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrReporterClosed
	}
	h.buf.Write(data)
	h.buf.WriteByte('\n')
	h.count++
	full := h.buf.Len() >= h.cfg.MaxRequestSize
	h.mu.Unlock()

	if full {
		return h.Flush(ctx)
	}
	return nil
}

// Flush posts everything buffered
func (h *HTTP) Flush(ctx context.Context) error {
	body, count := h.take()
	if count == 0 {
		return nil
	}
	return h.send(ctx, body, count)
}

// Close flushes and rejects further events
func (h *HTTP) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return h.Flush(ctx)
}

// BreakerState exposes the circuit breaker state
func (h *HTTP) BreakerState() resilience.State {
	return h.breaker.State()
}

func (h *HTTP) take() ([]byte, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil, 0
	}
	body := make([]byte, 0, len(h.metadataLine)+h.buf.Len())
	body = append(body, h.metadataLine...)
	body = append(body, h.buf.Bytes()...)
	count := h.count
	h.buf.Reset()
	h.count = 0
	return body, count
}

func (h *HTTP) send(ctx context.Context, body []byte, count int) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	payload := body
	encoding := ""
	if h.cfg.Compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return fmt.Errorf("http reporter: compress: %w", err)
		}
		payload = compressed
		encoding = "gzip"
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("http reporter: rate limit: %w", err)
	}

	if err := h.breaker.Allow(); err != nil {
		h.metrics.RecordReporterRequest(reporterHTTP, "circuit_open", 0, 0)
		h.logger.Warn("dropping events, intake unavailable",
			zap.Int("events", count), zap.Error(err))
		return fmt.Errorf("http reporter: %w", err)
	}

	req := h.client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", id.NewRequestID().String())
	if encoding != "" {
		req.SetHeader("Content-Encoding", encoding)
	}

	timer := monitoring.NewTimer(h.metrics, reporterHTTP)
	resp, err := req.SetBody(payload).Post(IntakePath)
	if err == nil && resp.StatusCode() >= http.StatusBadRequest {
		err = fmt.Errorf("%w: status %d: %s", ErrIntakeRejected, resp.StatusCode(), truncate(resp.String(), 256))
	}
	h.breaker.Record(err)

	if err != nil {
		timer.Stop("error", len(payload))
		h.logger.Warn("failed to send events",
			zap.Int("events", count), zap.Int("bytes", len(payload)), zap.Error(err))
		return fmt.Errorf("http reporter: %w", err)
	}

	duration := timer.Stop("success", len(payload))
	h.logger.Debug("sent events",
		zap.Int("events", count), zap.Int("bytes", len(payload)), zap.Duration("duration", duration))
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
