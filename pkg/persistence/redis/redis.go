// Package redis provides Redis persistence of the run archive.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "runwatch"

// Persistence stores each run as a JSON string and indexes runs per canvas in a
// sorted set scored by finish time.
type Persistence struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPersistence connects to the Redis server described by a redis:// or rediss:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewPersistenceWithClient(client, defaultPrefix, logger), nil
}

// NewPersistenceWithClient wraps an existing client; keys are namespaced by prefix.
func NewPersistenceWithClient(client redis.UniversalClient, prefix string, logger *slog.Logger) *Persistence {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Persistence{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		logger: logger.With("module", "redis_persistence"),
	}
}

func (p *Persistence) runKey(runID string) string {
	return p.prefix + ":run:" + runID
}

func (p *Persistence) canvasKey(canvasID string) string {
	return p.prefix + ":canvas:" + canvasID + ":runs"
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) SaveRun(ctx context.Context, run *models.RunSummary) error {
	err := persistence.ValidateRun("SaveRun", run)
	if err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.runKey(run.ID), data, 0)
		pipe.ZAdd(ctx, p.canvasKey(run.CanvasID), redis.Z{
			Score:  float64(run.FinishedAt.UnixMilli()),
			Member: run.ID,
		})

		return nil
	})
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.RunSummary, error) {
	data, err := p.client.Get(ctx, p.runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", id, err)
	}

	var run models.RunSummary

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

func (p *Persistence) RunsByCanvas(ctx context.Context, canvasID string, limit int) ([]*models.RunSummary, error) {
	limit = persistence.NormalizeLimit(limit)

	ids, err := p.client.ZRevRange(ctx, p.canvasKey(canvasID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
	}

	runs := make([]*models.RunSummary, 0, len(ids))
	if len(ids) == 0 {
		return runs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.runKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry outlived its run document.
			p.logger.WarnContext(ctx, "Skipping dangling run index entry", "canvas_id", canvasID, "run_id", ids[i])

			continue
		}

		var run models.RunSummary

		err = json.Unmarshal([]byte(raw), &run)
		if err != nil {
			return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

var _ persistence.Persistence = (*Persistence)(nil)
