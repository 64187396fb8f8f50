package internal

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/ops-harvester/internal/config"
	"github.com/Qubut/ops-harvester/internal/ops"
	"github.com/Qubut/ops-harvester/internal/search"
)

type Services struct {
	Harvester HarvesterInterface
}

func InitServices(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	client, err := ops.NewClient(ops.Config{
		BaseURL:      cfg.OPS.BaseURL,
		Timeout:      cfg.OPS.Timeout,
		MaxRetries:   cfg.OPS.MaxRetries,
		CallInterval: cfg.OPS.CallInterval,
	}, tracer, logger, meter)
	if err != nil {
		return nil, err
	}

	tokens := &ops.ClientCredentials{
		AuthURL:      cfg.OPS.AuthURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
	}

	driver, err := search.NewDriver(client, tokens, tracer, logger, meter)
	if err != nil {
		return nil, err
	}

	return &Services{
		Harvester: driver,
	}, nil
}
