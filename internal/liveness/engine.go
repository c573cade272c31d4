package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type EngineConfig struct {
	Loader     Loader
	Detector   Detector
	Classifier Classifier
	Cropper    Cropper
	Logger     *slog.Logger
}

// Engine is the process-wide handle on the inference collaborators. The
// first successful Load is cached for the life of the process; a failed
// Load is retried by the next caller.
type Engine struct {
	loader     Loader
	detector   Detector
	classifier Classifier
	cropper    Cropper
	logger     *slog.Logger

	mu     sync.Mutex
	loaded bool
	info   EngineInfo
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		loader:     cfg.Loader,
		detector:   cfg.Detector,
		classifier: cfg.Classifier,
		cropper:    cfg.Cropper,
		logger:     cfg.Logger.With("component", "liveness-engine"),
	}
}

func (e *Engine) Load(ctx context.Context) (EngineInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return e.info, nil
	}
	if e.detector == nil || e.classifier == nil {
		return EngineInfo{}, fmt.Errorf("%w: detector and classifier are required", ErrModelLoad)
	}

	var info EngineInfo
	if e.loader != nil {
		var err error
		info, err = e.loader.Load(ctx)
		if err != nil {
			e.logger.Warn("engine load failed", "error", err)
			return EngineInfo{}, fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
	}

	e.loaded = true
	e.info = info
	e.logger.Info("engine loaded",
		"detector_version", info.DetectorVersion,
		"classifier_version", info.ClassifierVersion)
	return info, nil
}

func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) Detector() Detector     { return e.detector }
func (e *Engine) Classifier() Classifier { return e.classifier }
func (e *Engine) Cropper() Cropper       { return e.cropper }
