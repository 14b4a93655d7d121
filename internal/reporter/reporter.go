package reporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/shared/id"
)

// AgentName is reported in metadata
const AgentName = "apmcore"

// AgentVersion is reported in metadata
const AgentVersion = "0.4.0"

var (
	// ErrReporterClosed is returned by sends after Close
	ErrReporterClosed = errors.New("reporter closed")
	// ErrIntakeRejected is returned when the intake answers with an error status
	ErrIntakeRejected = errors.New("intake rejected request")
)

// Reporter is the sink for encoded events
type Reporter interface {
	SendTransaction(ctx context.Context, tx *model.Transaction) error
	SendSpan(ctx context.Context, span *model.Span) error
	Flush(ctx context.Context) error
}

// Closer is implemented by reporters that hold connections
type Closer interface {
	Close(ctx context.Context) error
}

// Send dispatches ev to the matching Reporter method
func Send(ctx context.Context, r Reporter, ev model.Event) error {
	switch ev.Kind() {
	case model.KindTransaction:
		return r.SendTransaction(ctx, ev.Transaction)
	default:
		return r.SendSpan(ctx, ev.Span)
	}
}

// Close closes r if it holds resources
func Close(ctx context.Context, r Reporter) error {
	if c, ok := r.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

// NewMetadata builds process metadata for svc
func NewMetadata(svc config.ServiceConfig) model.Metadata {
	return model.Metadata{
		Service: model.Service{
			Name:        svc.Name,
			Version:     svc.Version,
			Environment: svc.Environment,
			Agent: model.Agent{
				Name:        AgentName,
				Version:     AgentVersion,
				EphemeralID: id.EphemeralID(),
			},
		},
		Process: model.Process{
			PID:   os.Getpid(),
			Title: filepath.Base(os.Args[0]),
		},
	}
}

// New builds the reporter selected by cfg.Kind
func New(cfg config.ReporterConfig, meta model.Metadata, logger *zap.Logger, metrics *monitoring.Metrics) (Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Kind {
	case config.ReporterHTTP:
		return NewHTTP(HTTPConfig{
			ServerURL:      cfg.ServerURL,
			SecretToken:    cfg.SecretToken,
			Timeout:        cfg.Timeout.Std(),
			MaxRequestSize: cfg.MaxRequestSize,
			RequestRate:    cfg.RequestRate,
			RequestBurst:   cfg.RequestBurst,
			MaxRetries:     cfg.MaxRetries,
			Compress:       cfg.Compress,
			Metadata:       meta,
		}, logger, metrics)
	case config.ReporterOTLP:
		return NewOTLP(cfg.OTLPEndpoint, meta, logger, metrics)
	case config.ReporterLog:
		return NewLog(logger), nil
	case config.ReporterNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownReporter, cfg.Kind)
	}
}

// Nop discards every event
type Nop struct{}

// SendTransaction discards tx
func (Nop) SendTransaction(context.Context, *model.Transaction) error { return nil }

// SendSpan discards span
func (Nop) SendSpan(context.Context, *model.Span) error { return nil }

// Flush does nothing
func (Nop) Flush(context.Context) error { return nil }
