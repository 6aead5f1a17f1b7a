package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type CollectorFactory func(ctx context.Context, logger *zap.Logger, input any) (Collector, error)
type SinkFactory func(ctx context.Context, logger *zap.Logger, input any) (Sink, error)

// TypedCollectorFactory is a strongly-typed collector factory.
// T is the concrete spec type (e.g. v1.CloudflareCollector).
type TypedCollectorFactory[T any] func(ctx context.Context, logger *zap.Logger, spec T) (Collector, error)

// TypedSinkFactory is a strongly-typed sink factory.
// T is the concrete spec type (e.g. v1.S3SinkSpec).
type TypedSinkFactory[T any] func(ctx context.Context, logger *zap.Logger, spec T) (Sink, error)

// NewCollectorFactory wraps a typed collector factory into a generic CollectorFactory.
func NewCollectorFactory[T any](kind string, f TypedCollectorFactory[T]) CollectorFactory {
	return func(ctx context.Context, logger *zap.Logger, input any) (Collector, error) {
		spec, ok := input.(T)
		if !ok {
			return nil, fmt.Errorf("invalid collector spec for kind %q: %T", kind, input)
		}
		return f(ctx, logger, spec)
	}
}

// NewSinkFactory wraps a typed sink factory into a generic SinkFactory.
func NewSinkFactory[T any](kind string, f TypedSinkFactory[T]) SinkFactory {
	return func(ctx context.Context, logger *zap.Logger, input any) (Sink, error) {
		spec, ok := input.(T)
		if !ok {
			return nil, fmt.Errorf("invalid sink spec for kind %q: %T", kind, input)
		}
		return f(ctx, logger, spec)
	}
}

// UnsupportedTypeError is returned when a collector or sink kind is not registered.
type UnsupportedTypeError struct {
	Category  string   // "collector" or "sink"
	Kind      string   // the requested kind
	Available []string // registered kinds
}

func (e *UnsupportedTypeError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unsupported %s type %q: no %ss registered", e.Category, e.Kind, e.Category)
	}
	return fmt.Sprintf("unsupported %s type %q (available: %v)", e.Category, e.Kind, e.Available)
}

type Registry struct {
	mu         sync.RWMutex
	collectors map[string]CollectorFactory
	sinks      map[string]SinkFactory
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		collectors: make(map[string]CollectorFactory),
		sinks:      make(map[string]SinkFactory),
		logger:     logger,
	}
}

func (r *Registry) RegisterCollector(kind string, factory CollectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[kind] = factory
}

func (r *Registry) RegisterSink(kind string, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[kind] = factory
}

func (r *Registry) CreateCollector(ctx context.Context, kind string, spec any) (Collector, error) {
	r.mu.RLock()
	factory, ok := r.collectors[kind]
	available := sortedKeys(r.collectors)
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Category: "collector", Kind: kind, Available: available}
	}
	return factory(ctx, r.logger, spec)
}

func (r *Registry) CreateSink(ctx context.Context, kind string, spec any) (Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[kind]
	available := sortedKeys(r.sinks)
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Category: "sink", Kind: kind, Available: available}
	}
	return factory(ctx, r.logger, spec)
}

func (r *Registry) AvailableCollectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.collectors)
}

func (r *Registry) AvailableSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sinks)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
