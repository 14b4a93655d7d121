package instrumentation

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/apmcore/internal/apm"
)

// TopicLoad is the EventBus topic a loader publishes *LoadEvent values on
const TopicLoad = "instrumentation:load"

// Built-in targets
const (
	TargetHTTPClient   = "net/http.Client"
	TargetRoundTripper = "net/http.RoundTripper"
	TargetGin          = "github.com/gin-gonic/gin.Engine"
	TargetGRPCServer   = "google.golang.org/grpc.ServerOptions"
	TargetGRPCDialer   = "google.golang.org/grpc.DialOptions"
)

var (
	// ErrUnknownTarget is returned by Apply for targets with no transformers
	ErrUnknownTarget = errors.New("unknown instrumentation target")
	// ErrUnexpectedModule is returned by a transformer given the wrong type
	ErrUnexpectedModule = errors.New("unexpected module type")
)

// Transformer instruments module and returns the value to use in its place
type Transformer func(module interface{}) (interface{}, error)

// LoadEvent is published by a loader; the registry fills in Module and Err
type LoadEvent struct {
	Target string
	Module interface{}
	Err    error
}

// Registry maps target identifiers to transformers, applied in
// registration order
type Registry struct {
	mu      sync.RWMutex
	targets map[string][]Transformer
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		targets: make(map[string][]Transformer),
		logger:  logger,
	}
}

// NewDefaultRegistry registers the built-in targets for tracer
func NewDefaultRegistry(tracer *apm.Tracer, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(TargetRoundTripper, func(module interface{}) (interface{}, error) {
		base, ok := module.(http.RoundTripper)
		if !ok && module != nil {
			return nil, unexpected(TargetRoundTripper, module)
		}
		return NewTransport(tracer, base), nil
	})
	r.Register(TargetHTTPClient, func(module interface{}) (interface{}, error) {
		client, ok := module.(*http.Client)
		if !ok || client == nil {
			return nil, unexpected(TargetHTTPClient, module)
		}
		wrapped := *client
		wrapped.Transport = NewTransport(tracer, client.Transport)
		return &wrapped, nil
	})
	r.Register(TargetGin, func(module interface{}) (interface{}, error) {
		engine, ok := module.(*gin.Engine)
		if !ok || engine == nil {
			return nil, unexpected(TargetGin, module)
		}
		engine.Use(Middleware(tracer))
		return engine, nil
	})
	r.Register(TargetGRPCServer, func(module interface{}) (interface{}, error) {
		opts, ok := module.([]grpc.ServerOption)
		if !ok && module != nil {
			return nil, unexpected(TargetGRPCServer, module)
		}
		return append(opts,
			grpc.ChainUnaryInterceptor(UnaryServerInterceptor(tracer)),
			grpc.ChainStreamInterceptor(StreamServerInterceptor(tracer))), nil
	})
	r.Register(TargetGRPCDialer, func(module interface{}) (interface{}, error) {
		opts, ok := module.([]grpc.DialOption)
		if !ok && module != nil {
			return nil, unexpected(TargetGRPCDialer, module)
		}
		return append(opts, grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(tracer))), nil
	})
	return r
}

func unexpected(target string, module interface{}) error {
	return fmt.Errorf("%w: %s got %T", ErrUnexpectedModule, target, module)
}

// Register appends transformers for target
func (r *Registry) Register(target string, transformers ...Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target] = append(r.targets[target], transformers...)
}

// Targets lists registered targets in sorted order
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.targets))
	for target := range r.targets {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Apply runs every transformer of target over module in turn
func (r *Registry) Apply(target string, module interface{}) (interface{}, error) {
	r.mu.RLock()
	transformers := append([]Transformer(nil), r.targets[target]...)
	r.mu.RUnlock()

	if len(transformers) == 0 {
		return module, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	for i, transform := range transformers {
		next, err := transform(module)
		if err != nil {
			return module, fmt.Errorf("instrument %s (transformer %d): %w", target, i, err)
		}
		module = next
	}
	r.logger.Debug("instrumented module", zap.String("target", target), zap.Int("transformers", len(transformers)))
	return module, nil
}

// Listen subscribes the registry to load events on bus. Handlers run
// synchronously, so the publisher sees the result once Publish returns.
func (r *Registry) Listen(bus EventBus.Bus) error {
	if err := bus.Subscribe(TopicLoad, r.handleLoad); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicLoad, err)
	}
	return nil
}

// Unlisten removes the subscription made by Listen
func (r *Registry) Unlisten(bus EventBus.Bus) error {
	return bus.Unsubscribe(TopicLoad, r.handleLoad)
}

func (r *Registry) handleLoad(ev *LoadEvent) {
	if ev == nil {
		return
	}
	ev.Module, ev.Err = r.Apply(ev.Target, ev.Module)
	if ev.Err != nil {
		r.logger.Warn("instrumentation failed", zap.String("target", ev.Target), zap.Error(ev.Err))
	}
}
