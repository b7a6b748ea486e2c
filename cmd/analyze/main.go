// Command analyze runs one video through the coaching pipeline and prints
// the feedback list as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/app"
	"github.com/Pinaire1/jujitsu-app/internal/config"
	"github.com/Pinaire1/jujitsu-app/internal/logging"
	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/internal/resource"
	"github.com/Pinaire1/jujitsu-app/internal/rules"
)

func main() {
	videoRef := flag.String("video", "", "Video path or URL")
	fps := flag.Float64("fps", 0, "Frame rate to use when the container does not report one")
	user := flag.String("user", "anonymous", "User the analysis belongs to")
	save := flag.Bool("save", false, "Store the analysis in the database")
	focus := flag.String("focus", "", "Technique to emphasise in generated feedback")
	dumpRules := flag.Bool("dump-rules", false, "Print the active rule set as YAML and exit")
	clock := flag.Bool("clock", false, "Print timestamps as MM:SS")
	verbose := flag.Bool("v", false, "Log to stderr")
	flag.Parse()

	cfg, warnings := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := logging.NewStderr(cfg.LogLevel, "console")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()
	for _, w := range warnings {
		logger.Warn(w)
	}

	p, err := app.Build(cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	if *dumpRules {
		out, err := rules.Marshal(p.Rules)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode rules: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	if *videoRef == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -video <path|url> [-fps N] [-user ID] [-focus TEXT] [-clock] [-save]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feedback, err := analyze(ctx, cfg, p, *videoRef, *fps, *user, *focus, *save, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed (%s): %v\n", models.KindOf(err), err)
		os.Exit(1)
	}

	if *clock {
		feedback = feedback.AsClock()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(feedback); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write result: %v\n", err)
		os.Exit(1)
	}
}

func analyze(ctx context.Context, cfg *config.Config, p *app.Pipeline, ref string, fps float64, user, focus string, save bool, logger *zap.Logger) (models.FeedbackList, error) {
	local, err := p.Resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer local.Close()

	report, err := p.Analyzer.Analyze(ctx, analysis.Request{
		VideoPath:     local.Path,
		FrameRateHint: fps,
		Focus:         focus,
	})
	if err != nil {
		return nil, err
	}
	if report.Partial {
		fmt.Fprintln(os.Stderr, "warning: video could only be partly decoded")
	}

	if save {
		db, store, err := app.OpenStore(ctx, cfg, false, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		rec := &models.AnalysisRecord{
			ID:             report.ID,
			UserID:         user,
			VideoID:        uuid.NewString(),
			VideoPath:      resource.Redact(ref),
			VideoDigest:    local.Digest,
			Source:         report.Source,
			FallbackReason: report.FallbackReason,
			Partial:        report.Partial,
			Insights:       report.Feedback,
		}
		if err := store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("save analysis: %w", err)
		}
		fmt.Fprintf(os.Stderr, "saved analysis %s for user %s video %s\n", rec.ID, rec.UserID, rec.VideoID)
	}

	return report.Feedback, nil
}
