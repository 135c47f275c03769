package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/remote"
	"go.opentelemetry.io/otel/trace"
)

// NewRemoteClient builds the workflow backend client. Flag values win over
// the config file; the canvas parameter schemas of the file are registered.
func NewRemoteClient(
	file *config.File,
	baseURL, token string,
	timeout time.Duration,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*remote.HTTPClient, error) {
	if baseURL == "" {
		baseURL = file.Remote.BaseURL
	}

	if token == "" {
		token = file.Remote.Token
	}

	if timeout == 0 {
		timeout = file.Remote.Timeout
	}

	opts := []remote.Option{
		remote.WithToken(token),
		remote.WithLogger(logger.With("module", "remote_client")),
	}

	if timeout > 0 {
		opts = append(opts, remote.WithTimeout(timeout))
	}

	if tracer != nil {
		opts = append(opts, remote.WithTracer(tracer))
	}

	client, err := remote.NewHTTPClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}

	if err := file.RegisterParamSchemas(client); err != nil {
		return nil, err
	}

	return client, nil
}
