package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/config"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	cfg := &config.Config{
		GRPCPort:              "-1",
		HTTPPort:              "0",
		PoseServiceAddr:       "localhost:9000",
		PoseTimeout:           time.Second,
		SampleEvery:           1,
		Decoder:               "ffmpeg",
		FFmpegPath:            "ffmpeg",
		FFprobePath:           "ffprobe",
		MaxConcurrentAnalyses: 1,
		MaxUploadMB:           1,
		TempVideoDir:          t.TempDir(),
	}
	require.NoError(t, cfg.Validate())

	done := make(chan error, 1)
	go func() { done <- run(cfg, false, zap.NewNop()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "failed to listen on gRPC port")
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after a listen failure")
	}
}
