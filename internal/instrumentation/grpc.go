package instrumentation

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/apmcore/internal/apm"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// UnaryServerInterceptor starts a transaction per unary call
func UnaryServerInterceptor(tracer *apm.Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, tx := startServerTransaction(ctx, tracer, info.FullMethod)
		resp, err := handler(ctx, req)
		endServerTransaction(tx, err)
		return resp, err
	}
}

// StreamServerInterceptor starts a transaction per stream
func StreamServerInterceptor(tracer *apm.Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, tx := startServerTransaction(ss.Context(), tracer, info.FullMethod)
		tx.SetLabel("rpc.streaming", "true")
		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		endServerTransaction(tx, err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the transaction's context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClientInterceptor creates an exit span per call and propagates the
// trace in outgoing metadata
func UnaryClientInterceptor(tracer *apm.Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		var err error
		mgr := tracer.Manager()
		mgr.With(ctx, mgr.Active(ctx), func(ctx context.Context) {
			ctx, span := tracer.StartSpan(ctx, method, "external",
				apm.Subtype("grpc"),
				apm.WithDestination(apm.Destination{Address: cc.Target(), Resource: cc.Target()}))

			md, _ := metadata.FromOutgoingContext(ctx)
			md = md.Copy()
			if tracer.Inject(ctx, MetadataCarrier(md)) {
				ctx = metadata.NewOutgoingContext(ctx, md)
			}

			err = invoker(ctx, method, req, reply, cc, opts...)
			if code := status.Code(err); code != codes.OK {
				span.SetLabel("grpc.code", code.String())
				_ = span.SetOutcome(apm.OutcomeFailure)
			}
			span.End()
		})
		return err
	}
}

func startServerTransaction(ctx context.Context, tracer *apm.Tracer, method string) (context.Context, *apm.Transaction) {
	var traceparent, tracestate string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		traceparent, tracestate = tracecontext.Extract(MetadataCarrier(md))
	}
	return tracer.StartTransaction(ctx, method, TransactionTypeRequest,
		apm.TraceHeaders(traceparent, tracestate))
}

func endServerTransaction(tx *apm.Transaction, err error) {
	code := status.Code(err)
	tx.SetResult(code.String())
	if serverFailure(code) {
		_ = tx.SetOutcome(apm.OutcomeFailure)
	} else {
		_ = tx.SetOutcome(apm.OutcomeSuccess)
	}
	tx.End()
}

// serverFailure reports codes that indicate a fault on the server side;
// client mistakes such as NotFound leave the transaction successful
func serverFailure(code codes.Code) bool {
	switch code {
	case codes.Unknown, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.FailedPrecondition, codes.Aborted, codes.Internal,
		codes.Unavailable, codes.DataLoss:
		return true
	}
	return false
}
