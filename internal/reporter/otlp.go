package reporter

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/model"
)

const reporterOTLP = "otlp"

// OTLP converts payloads to OTLP spans and exports them over gRPC on Flush
type OTLP struct {
	client   protoTrace.TraceServiceClient
	conn     *grpc.ClientConn
	resource *resourcepb.Resource
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	pending []*tracepb.Span
	closed  bool
}

// NewOTLP dials endpoint without transport security
func NewOTLP(endpoint string, meta model.Metadata, logger *zap.Logger, metrics *monitoring.Metrics, opts ...grpc.DialOption) (*OTLP, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp reporter: dial %s: %w", endpoint, err)
	}
	o := NewOTLPWithClient(protoTrace.NewTraceServiceClient(conn), meta, logger, metrics)
	o.conn = conn
	return o, nil
}

// NewOTLPWithClient wraps an existing trace service client
func NewOTLPWithClient(client protoTrace.TraceServiceClient, meta model.Metadata, logger *zap.Logger, metrics *monitoring.Metrics) *OTLP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTLP{
		client:   client,
		resource: resourceFromMetadata(meta),
		logger:   logger,
		metrics:  metrics,
	}
}

// SendTransaction queues tx as a server span
func (o *OTLP) SendTransaction(_ context.Context, tx *model.Transaction) error {
	span, err := transactionToOTLP(tx)
	if err != nil {
		return err
	}
	return o.queue(span)
}

// SendSpan queues span
func (o *OTLP) SendSpan(_ context.Context, span *model.Span) error {
	converted, err := spanToOTLP(span)
	if err != nil {
		return err
	}
	return o.queue(converted)
}

func (o *OTLP) queue(span *tracepb.Span) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrReporterClosed
	}
	o.pending = append(o.pending, span)
	return nil
}

// Flush exports every queued span in one request
func (o *OTLP) Flush(ctx context.Context) error {
	o.mu.Lock()
	spans := o.pending
	o.pending = nil
	o.mu.Unlock()

	if len(spans) == 0 {
		return nil
	}

	req := &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: o.resource,
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: AgentName, Version: AgentVersion},
				Spans: spans,
			}},
		}},
	}

	timer := monitoring.NewTimer(o.metrics, reporterOTLP)
	resp, err := o.client.Export(ctx, req)
	if err != nil {
		timer.Stop("error", 0)
		o.logger.Warn("failed to export spans", zap.Int("spans", len(spans)), zap.Error(err))
		return fmt.Errorf("otlp reporter: export: %w", err)
	}
	timer.Stop("success", 0)

	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedSpans() > 0 {
		o.logger.Warn("collector rejected spans",
			zap.Int64("rejected", ps.GetRejectedSpans()),
			zap.String("reason", ps.GetErrorMessage()))
	}
	return nil
}

// Close exports what is queued and closes the connection
func (o *OTLP) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	err := o.Flush(ctx)
	if o.conn != nil {
		if cerr := o.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// ============================================================================
// Conversion
// ============================================================================

func resourceFromMetadata(meta model.Metadata) *resourcepb.Resource {
	attrs := []*commonpb.KeyValue{
		stringAttr("service.name", meta.Service.Name),
		stringAttr("telemetry.sdk.name", meta.Service.Agent.Name),
		stringAttr("telemetry.sdk.version", meta.Service.Agent.Version),
	}
	if meta.Service.Version != "" {
		attrs = append(attrs, stringAttr("service.version", meta.Service.Version))
	}
	if meta.Service.Environment != "" {
		attrs = append(attrs, stringAttr("deployment.environment", meta.Service.Environment))
	}
	if meta.Service.Agent.EphemeralID != "" {
		attrs = append(attrs, stringAttr("service.instance.id", meta.Service.Agent.EphemeralID))
	}
	if meta.Process.PID != 0 {
		attrs = append(attrs, intAttr("process.pid", int64(meta.Process.PID)))
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func transactionToOTLP(tx *model.Transaction) (*tracepb.Span, error) {
	traceID, spanID, parentID, err := decodeIDs(tx.TraceID, tx.ID, tx.ParentID)
	if err != nil {
		return nil, err
	}

	start, end := timesFor(tx.Timestamp, tx.Duration)
	attrs := []*commonpb.KeyValue{
		stringAttr("transaction.type", tx.Type),
		boolAttr("transaction.sampled", tx.Sampled),
		intAttr("span_count.started", int64(tx.SpanCount.Started)),
		intAttr("span_count.dropped", int64(tx.SpanCount.Dropped)),
	}
	if tx.Result != "" {
		attrs = append(attrs, stringAttr("transaction.result", tx.Result))
	}
	if tx.SampleRate != nil {
		attrs = append(attrs, doubleAttr("transaction.sample_rate", *tx.SampleRate))
	}
	if c := tx.Context; c != nil {
		if c.Request != nil {
			attrs = append(attrs,
				stringAttr("http.request.method", c.Request.Method),
				stringAttr("url.full", c.Request.URL))
		}
		if c.Response != nil {
			attrs = append(attrs, intAttr("http.response.status_code", int64(c.Response.StatusCode)))
		}
	}

	return &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              tx.Name,
		Kind:              tracepb.Span_SPAN_KIND_SERVER,
		StartTimeUnixNano: start,
		EndTimeUnixNano:   end,
		Attributes:        attrs,
		Status:            statusFor(tx.Outcome),
	}, nil
}

func spanToOTLP(span *model.Span) (*tracepb.Span, error) {
	traceID, spanID, parentID, err := decodeIDs(span.TraceID, span.ID, span.ParentID)
	if err != nil {
		return nil, err
	}

	start, end := timesFor(span.Timestamp, span.Duration)
	kind := tracepb.Span_SPAN_KIND_INTERNAL
	attrs := []*commonpb.KeyValue{stringAttr("span.type", span.Type)}
	if span.Subtype != "" {
		attrs = append(attrs, stringAttr("span.subtype", span.Subtype))
	}
	if span.Action != "" {
		attrs = append(attrs, stringAttr("span.action", span.Action))
	}
	if c := span.Context; c != nil {
		if d := c.Destination; d != nil {
			kind = tracepb.Span_SPAN_KIND_CLIENT
			if d.Address != "" {
				attrs = append(attrs, stringAttr("server.address", d.Address))
			}
			if d.Port != 0 {
				attrs = append(attrs, intAttr("server.port", int64(d.Port)))
			}
			if d.Service != nil {
				attrs = append(attrs, stringAttr("span.destination.service.resource", d.Service.Resource))
			}
		}
		if h := c.HTTP; h != nil {
			kind = tracepb.Span_SPAN_KIND_CLIENT
			attrs = append(attrs, stringAttr("http.request.method", h.Method), stringAttr("url.full", h.URL))
			if h.StatusCode != 0 {
				attrs = append(attrs, intAttr("http.response.status_code", int64(h.StatusCode)))
			}
		}
	}
	if c := span.Composite; c != nil {
		attrs = append(attrs,
			stringAttr("span.composite.compression_strategy", c.CompressionStrategy),
			intAttr("span.composite.count", int64(c.Count)),
			doubleAttr("span.composite.sum", c.Sum))
	}

	return &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              span.Name,
		Kind:              kind,
		StartTimeUnixNano: start,
		EndTimeUnixNano:   end,
		Attributes:        attrs,
		Status:            statusFor(span.Outcome),
	}, nil
}

func decodeIDs(traceHex, idHex, parentHex string) (traceID, spanID, parentID []byte, err error) {
	if traceID, err = hex.DecodeString(traceHex); err != nil || len(traceID) != 16 {
		return nil, nil, nil, fmt.Errorf("otlp reporter: bad trace id %q", traceHex)
	}
	if spanID, err = hex.DecodeString(idHex); err != nil || len(spanID) != 8 {
		return nil, nil, nil, fmt.Errorf("otlp reporter: bad span id %q", idHex)
	}
	if parentHex != "" {
		if parentID, err = hex.DecodeString(parentHex); err != nil || len(parentID) != 8 {
			return nil, nil, nil, fmt.Errorf("otlp reporter: bad parent id %q", parentHex)
		}
	}
	return traceID, spanID, parentID, nil
}

// timesFor converts a microsecond timestamp and millisecond duration
func timesFor(timestampUS int64, durationMS float64) (start, end uint64) {
	start = uint64(timestampUS) * 1000
	end = start + uint64(durationMS*1e6)
	return start, end
}

func statusFor(outcome string) *tracepb.Status {
	switch outcome {
	case model.OutcomeFailure:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	case model.OutcomeSuccess:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
	default:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_UNSET}
	}
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}}
}

func doubleAttr(key string, value float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: value}}}
}

func boolAttr(key string, value bool) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: value}}}
}
