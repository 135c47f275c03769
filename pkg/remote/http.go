package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/otelhelper"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	RunPath   = "/workflow/canvas/run"
	TracePath = "/workflow/trace/components/query"

	defaultTimeout  = 30 * time.Second
	maxErrorExcerpt = 512
)

// HTTPClient is the Client implementation for the workflow backend REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer

	schemasMu sync.RWMutex
	schemas   map[string]*gojsonschema.Schema
}

type Option func(*HTTPClient)

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithTimeout bounds every request. It applies to a client given through
// WithHTTPClient too, without modifying the caller's client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *HTTPClient) {
		c.tracer = tracer
	}
}

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	client := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
		logger:  slog.Default().With("module", "remote_client"),
		tracer:  otelhelper.DefaultTracer(),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.timeout > 0 && client.httpClient.Timeout != client.timeout {
		httpClient := *client.httpClient
		httpClient.Timeout = client.timeout
		client.httpClient = &httpClient
	}

	return client, nil
}

// RegisterParamSchema installs a JSON schema that params of canvasID must
// satisfy before StartRun contacts the backend.
func (c *HTTPClient) RegisterParamSchema(canvasID string, schema map[string]any) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("invalid param schema for canvas %s: %w", canvasID, err)
	}

	c.schemasMu.Lock()
	c.schemas[canvasID] = compiled
	c.schemasMu.Unlock()

	return nil
}

func (c *HTTPClient) validateParams(canvasID string, params map[string]any) error {
	c.schemasMu.RLock()
	schema, ok := c.schemas[canvasID]
	c.schemasMu.RUnlock()

	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &RemoteError{Op: "StartRun", CanvasID: canvasID, Err: ErrInvalidParams, Cause: err}
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return &RemoteError{
			Op:       "StartRun",
			CanvasID: canvasID,
			Err:      ErrInvalidParams,
			Message:  strings.Join(messages, "; "),
		}
	}

	return nil
}

func (c *HTTPClient) StartRun(ctx context.Context, canvasID string, params map[string]any) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "remote.StartRun",
		attribute.String(otelhelper.CanvasIDKey, canvasID),
	)
	defer span.End()

	if params == nil {
		params = map[string]any{}
	}

	err := c.validateParams(canvasID, params)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	var response runResponse

	err = c.post(ctx, "StartRun", canvasID, RunPath, runRequest{ID: canvasID, Params: params}, &response)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	if response.SerialID == "" {
		err = &RemoteError{Op: "StartRun", CanvasID: canvasID, Err: ErrMissingSerialID}
		otelhelper.SetError(span, err)

		return "", err
	}

	span.SetAttributes(attribute.String(otelhelper.SerialIDKey, response.SerialID))
	c.logger.DebugContext(ctx, "Run started", "canvas_id", canvasID, "serial_id", response.SerialID)

	return response.SerialID, nil
}

func (c *HTTPClient) FetchTrace(ctx context.Context, canvasID, serialID string) (*models.TraceSnapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "remote.FetchTrace",
		attribute.String(otelhelper.CanvasIDKey, canvasID),
		attribute.String(otelhelper.SerialIDKey, serialID),
	)
	defer span.End()

	var response traceResponse

	err := c.post(ctx, "FetchTrace", canvasID, TracePath, traceRequest{ID: canvasID, SerialID: serialID}, &response)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	for _, dto := range response.Records {
		if dto.StartTime.Raw != "" && !dto.StartTime.Valid {
			c.logger.DebugContext(ctx, "Dropping unparseable start time", "node_id", dto.NodeID, "value", dto.StartTime.Raw)
		}

		if dto.EndTime.Raw != "" && !dto.EndTime.Valid {
			c.logger.DebugContext(ctx, "Dropping unparseable end time", "node_id", dto.NodeID, "value", dto.EndTime.Raw)
		}
	}

	snapshot := response.toSnapshot()
	span.SetAttributes(attribute.String(otelhelper.StatusKey, snapshot.Status.String()))

	return snapshot, nil
}

func (c *HTTPClient) post(ctx context.Context, op, canvasID, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, Err: ErrInvalidParams, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, Err: ErrTransport, Cause: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, Err: ErrTransport, Cause: err}
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, StatusCode: resp.StatusCode, Err: ErrTransport, Cause: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &RemoteError{Op: op, CanvasID: canvasID, StatusCode: resp.StatusCode, Err: ErrUnauthorized}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{
			Op:         op,
			CanvasID:   canvasID,
			StatusCode: resp.StatusCode,
			Err:        ErrUnexpectedStatus,
			Message:    excerpt(raw),
		}
	}

	var env envelope

	err = json.Unmarshal(raw, &env)
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, StatusCode: resp.StatusCode, Err: ErrInvalidResponse, Cause: err}
	}

	if env.Code != 0 {
		return &RemoteError{
			Op:         op,
			CanvasID:   canvasID,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Msg,
			Err:        ErrRemoteRejected,
		}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &RemoteError{
			Op:         op,
			CanvasID:   canvasID,
			StatusCode: resp.StatusCode,
			Err:        ErrInvalidResponse,
			Cause:      errors.New("empty data"),
		}
	}

	err = json.Unmarshal(env.Data, out)
	if err != nil {
		return &RemoteError{Op: op, CanvasID: canvasID, StatusCode: resp.StatusCode, Err: ErrInvalidResponse, Cause: err}
	}

	return nil
}

func excerpt(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorExcerpt {
		return text[:maxErrorExcerpt] + "..."
	}

	return text
}
