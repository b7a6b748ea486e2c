// Package app builds the analysis pipeline from configuration. Both the
// server and the command line tool start here.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/coach"
	"github.com/Pinaire1/jujitsu-app/internal/config"
	"github.com/Pinaire1/jujitsu-app/internal/database"
	"github.com/Pinaire1/jujitsu-app/internal/resource"
	"github.com/Pinaire1/jujitsu-app/internal/rules"
	"github.com/Pinaire1/jujitsu-app/internal/services"
	"github.com/Pinaire1/jujitsu-app/internal/video"
)

type Pipeline struct {
	Analyzer *analysis.Analyzer
	Pose     *services.PoseClient
	Resolver *resource.Resolver
	Coach    *coach.Synthesizer
	Rules    []rules.Rule
	// Generator reports whether generated fallback feedback is configured.
	Generator bool
}

func Build(cfg *config.Config, metrics *services.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ruleSet := rules.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		ruleSet = loaded
		logger.Info("loaded rule set", zap.String("file", cfg.RulesFile), zap.Int("rules", len(ruleSet)))
	}

	opener, err := video.NewOpener(cfg.Decoder, video.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	pose, err := services.NewPoseClient(cfg.PoseServiceAddr, services.PoseClientOptions{
		Timeout:       cfg.PoseTimeout,
		MinVisibility: cfg.PoseMinVisibility,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pose client: %w", err)
	}

	var gen coach.Generator
	if cfg.OpenAIAPIKey != "" {
		gen = coach.NewOpenAIClient(coach.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.OpenAITimeout,
		}, logger)
	}

	synth := coach.NewSynthesizer(gen, logger)
	analyzer := analysis.New(opener, pose,
		rules.NewEngine(ruleSet, logger),
		synth,
		analysis.Options{
			SampleEvery:   cfg.SampleEvery,
			MaxConcurrent: cfg.MaxConcurrentAnalyses,
			Timeout:       cfg.AnalysisTimeout,
			Metrics:       metrics,
			Logger:        logger,
		})

	resolver := resource.NewResolver(resource.Options{
		TempDir:        cfg.TempVideoDir,
		StorageBaseURL: cfg.StorageBaseURL,
		MaxBytes:       int64(cfg.MaxUploadMB) << 20,
		Logger:         logger,
	})

	return &Pipeline{
		Analyzer:  analyzer,
		Pose:      pose,
		Resolver:  resolver,
		Coach:     synth,
		Rules:     ruleSet,
		Generator: synth.HasGenerator(),
	}, nil
}

func (p *Pipeline) Close() error {
	return p.Pose.Close()
}

// OpenStore connects to PostgreSQL and, when migrate is set, applies the
// embedded migrations first.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*sql.DB, *database.Store, error) {
	logger.Info("connecting to database", zap.String("dsn", cfg.DSNForLog()))
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, database.NewStore(db), nil
}
