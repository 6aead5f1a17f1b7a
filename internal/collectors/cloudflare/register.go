package cloudflare

import (
	"context"
	"time"

	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Register registers the cloudflare collector factory with the registry.
func Register(r *engine.Registry) {
	r.RegisterCollector(CollectorKind, engine.NewCollectorFactory(CollectorKind, collectorFactory))
}

func collectorFactory(_ context.Context, logger *zap.Logger, spec *v1.CloudflareCollector) (engine.Collector, error) {
	cfg := Config{
		Token:           spec.Token,
		AccountID:       spec.AccountID,
		AccountHash:     spec.AccountHash,
		APIBaseURL:      lo.FromPtr(spec.APIBaseURL),
		DeliveryBaseURL: lo.FromPtr(spec.DeliveryBaseURL),
		PerPage:         lo.FromPtr(spec.PerPage),
		Headers:         spec.Headers,
	}
	if spec.Timeout != nil {
		cfg.Timeout = time.Duration(*spec.Timeout) * time.Second
	}

	client, err := NewClient(cfg, WithLogger(logger.Named(CollectorKind)))
	if err != nil {
		return nil, err
	}
	return client, nil
}
