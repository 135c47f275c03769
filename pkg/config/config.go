// Package config loads the canvas configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for a configuration file that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// File represents the structure of the runwatch.yaml file.
type File struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Polling  PollingConfig  `yaml:"polling"`
	Canvases []CanvasConfig `yaml:"canvases" validate:"dive"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

type PollingConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=0"`
}

// CanvasConfig describes a canvas known to the service.
type CanvasConfig struct {
	ID          string           `yaml:"id" validate:"required"`
	Name        string           `yaml:"name"`
	Params      map[string]any   `yaml:"params"`
	ParamSchema map[string]any   `yaml:"param_schema"`
	Schedules   []ScheduleConfig `yaml:"schedules" validate:"dive"`
}

type ScheduleConfig struct {
	ID     string         `yaml:"id" validate:"required"`
	Cron   string         `yaml:"cron" validate:"required"`
	Params map[string]any `yaml:"params"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// ParamSchemaRegistry accepts per-canvas parameter schemas.
type ParamSchemaRegistry interface {
	RegisterParamSchema(canvasID string, schema map[string]any) error
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// LoadOrDefault loads path, returning an empty configuration when path is
// empty or the file does not exist.
func LoadOrDefault(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	file, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, nil
		}

		return nil, err
	}

	return file, nil
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*File, error) {
	var file File

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	err = file.Validate()
	if err != nil {
		return nil, err
	}

	return &file, nil
}

// Validate checks field rules, unique IDs and cron expressions.
func (f *File) Validate() error {
	err := validator.New().Struct(f)
	if err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	canvasIDs := make(map[string]bool)
	scheduleIDs := make(map[string]bool)

	for i, canvas := range f.Canvases {
		if canvasIDs[canvas.ID] {
			return fmt.Errorf("%w: canvases[%d]: duplicate canvas id %q", ErrInvalidConfig, i, canvas.ID)
		}

		canvasIDs[canvas.ID] = true

		for j, schedule := range canvas.Schedules {
			if scheduleIDs[schedule.ID] {
				return fmt.Errorf("%w: canvases[%d].schedules[%d]: duplicate schedule id %q", ErrInvalidConfig, i, j, schedule.ID)
			}

			scheduleIDs[schedule.ID] = true

			_, err := models.ParseCron(schedule.Cron)
			if err != nil {
				return fmt.Errorf("%w: canvases[%d].schedules[%d]: invalid cron expression: %w", ErrInvalidConfig, i, j, err)
			}
		}
	}

	return nil
}

// Canvas returns the configuration of a canvas.
func (f *File) Canvas(id string) (CanvasConfig, bool) {
	for _, canvas := range f.Canvases {
		if canvas.ID == id {
			return canvas, true
		}
	}

	return CanvasConfig{}, false
}

// RunParams merges request params over the canvas defaults.
func (f *File) RunParams(canvasID string, params map[string]any) map[string]any {
	canvas, _ := f.Canvas(canvasID)

	return mergeParams(canvas.Params, params)
}

// Schedules builds the schedules of every canvas. Schedule params are merged
// over the canvas defaults.
func (f *File) Schedules() ([]*models.CanvasSchedule, error) {
	schedules := make([]*models.CanvasSchedule, 0)

	for _, canvas := range f.Canvases {
		for _, cfg := range canvas.Schedules {
			schedule, err := models.NewCanvasSchedule(cfg.ID, canvas.ID, cfg.Cron, mergeParams(canvas.Params, cfg.Params))
			if err != nil {
				return nil, fmt.Errorf("schedule %s: %w", cfg.ID, err)
			}

			if cfg.Active != nil {
				schedule.Active = *cfg.Active
			}

			schedules = append(schedules, schedule)
		}
	}

	return schedules, nil
}

// RegisterParamSchemas installs every configured parameter schema.
func (f *File) RegisterParamSchemas(registry ParamSchemaRegistry) error {
	for _, canvas := range f.Canvases {
		if len(canvas.ParamSchema) == 0 {
			continue
		}

		err := registry.RegisterParamSchema(canvas.ID, canvas.ParamSchema)
		if err != nil {
			return fmt.Errorf("canvas %s: %w", canvas.ID, err)
		}
	}

	return nil
}

func mergeParams(defaults, overrides map[string]any) map[string]any {
	if len(defaults) == 0 && len(overrides) == 0 {
		return overrides
	}

	merged := make(map[string]any, len(defaults)+len(overrides))

	for key, value := range defaults {
		merged[key] = value
	}

	for key, value := range overrides {
		merged[key] = value
	}

	return merged
}
