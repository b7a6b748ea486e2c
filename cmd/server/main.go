package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Pinaire1/jujitsu-app/internal/app"
	"github.com/Pinaire1/jujitsu-app/internal/config"
	"github.com/Pinaire1/jujitsu-app/internal/handlers"
	"github.com/Pinaire1/jujitsu-app/internal/logging"
	"github.com/Pinaire1/jujitsu-app/internal/services"
	"github.com/Pinaire1/jujitsu-app/pkg/pb"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	os.Exit(serve())
}

// serve returns the process exit code so deferred cleanup runs before exit.
func serve() int {
	cfg, warnings := config.LoadConfig()

	httpPort := flag.String("http-port", cfg.HTTPPort, "HTTP port")
	grpcPort := flag.String("grpc-port", cfg.GRPCPort, "gRPC port")
	poseURL := flag.String("pose-url", cfg.PoseServiceAddr, "Pose service address")
	migrate := flag.Bool("migrate", false, "Apply database migrations on startup")
	flag.Parse()

	cfg.HTTPPort = strings.TrimPrefix(*httpPort, ":")
	cfg.GRPCPort = strings.TrimPrefix(*grpcPort, ":")
	cfg.PoseServiceAddr = *poseURL

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := run(cfg, *migrate, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("Goodbye!")
	return 0
}

func run(cfg *config.Config, migrate bool, logger *zap.Logger) error {
	logger.Info("Starting...",
		zap.String("version", Version),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("pose_service", cfg.PoseServiceAddr),
		zap.String("decoder", cfg.Decoder),
		zap.Int("sample_every", cfg.SampleEvery),
		zap.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := services.GetMetrics()

	pipeline, err := app.Build(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if !pipeline.Generator {
		logger.Warn("generated feedback disabled, videos without rule findings will fail")
	}

	opts := handlers.Options{
		Analyzer:       pipeline.Analyzer,
		Resolver:       pipeline.Resolver,
		Pose:           pipeline.Pose,
		Metrics:        metrics,
		Logger:         logger,
		TempDir:        cfg.TempVideoDir,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		CORSOrigins:    cfg.CORSOrigins,
		GeneratorReady: pipeline.Generator,
		Version:        Version,
	}
	if pipeline.Generator {
		opts.Coach = pipeline.Coach
	}

	if cfg.DBEnabled {
		db, store, err := app.OpenStore(ctx, cfg, migrate, logger)
		if err != nil {
			logger.Warn("Database not available, analyses will not be stored", zap.Error(err))
		} else {
			defer db.Close()
			opts.Store = store
		}
	}

	hub := handlers.NewHub(handlers.CheckOrigin(cfg.CORSOrigins), metrics, logger)
	opts.Hub = hub
	api := handlers.New(opts)

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(pb.MaxMessageSize),
		grpc.MaxSendMsgSize(pb.MaxMessageSize),
		grpc.ChainUnaryInterceptor(logUnary(logger)),
	)
	pb.RegisterCoachServer(grpcServer, handlers.NewGRPCHandler(opts))

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", zap.String("port", cfg.GRPCPort))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening",
			zap.String("port", cfg.HTTPPort),
			zap.String("websocket", "ws://localhost:"+cfg.HTTPPort+"/ws"),
			zap.String("api", "http://localhost:"+cfg.HTTPPort+"/api/"),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdown(grpcServer, httpServer, api, hub, logger)
		return nil
	})

	return g.Wait()
}

func shutdown(grpcServer *grpc.Server, httpServer *http.Server, api *handlers.Handler, hub *handlers.Hub, logger *zap.Logger) {
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped")
	case <-time.After(10 * time.Second):
		logger.Warn("gRPC forced shutdown")
		grpcServer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	api.Close()
	hub.Close()
	logger.Info("All WebSocket connections closed")
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}
