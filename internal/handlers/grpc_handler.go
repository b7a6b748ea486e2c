package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Pinaire1/jujitsu-app/internal/models"
	pb "github.com/Pinaire1/jujitsu-app/pkg/pb"
)

type GRPCHandler struct {
	pb.UnimplementedCoachServer
	svc     *service
	version string
}

func NewGRPCHandler(opts Options) *GRPCHandler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &GRPCHandler{
		svc:     newService(opts, opts.Logger.With(zap.String("component", "grpc"))),
		version: opts.Version,
	}
}

func (h *GRPCHandler) Analyze(ctx context.Context, req *pb.AnalyzeRequest) (*pb.AnalyzeResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.VideoPath) == "" {
		return nil, status.Error(codes.InvalidArgument, "video_path is required")
	}
	if req.FrameRateHint < 0 {
		return nil, status.Error(codes.InvalidArgument, "frame_rate_hint must not be negative")
	}
	userID := req.UserID
	if userID == "" {
		userID = anonymousUser
	}
	videoID := req.VideoID
	if videoID == "" {
		videoID = uuid.NewString()
	}

	resp, err := h.svc.process(ctx, job{
		userID:  userID,
		videoID: videoID,
		ref:     req.VideoPath,
		remote:  true,
		focus:   req.Focus,
		fps:     req.FrameRateHint,
	})
	if err != nil {
		h.svc.logger.Warn("analyze failed", zap.String("video", req.VideoPath), zap.Error(err))
		return nil, grpcStatus(err)
	}

	out := &pb.AnalyzeResponse{
		AnalysisID:     resp.AnalysisID,
		Source:         string(resp.Source),
		FallbackReason: string(resp.FallbackReason),
		Partial:        resp.Partial,
		FrameRate:      resp.FrameRate,
		Items:          make([]pb.FeedbackItem, 0, len(resp.Insights)),
	}
	for _, ev := range resp.Insights {
		out.Items = append(out.Items, pb.FeedbackItem{Timestamp: ev.Timestamp.String(), Tip: ev.Tip})
	}

	h.svc.logger.Info("analyze complete",
		zap.String("analysis_id", out.AnalysisID),
		zap.String("source", out.Source),
		zap.Int("items", len(out.Items)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// grpcStatus maps pipeline errors onto gRPC codes.
func grpcStatus(err error) error {
	switch models.KindOf(err) {
	case models.KindResourceUnavailable:
		return status.Error(codes.InvalidArgument, err.Error())
	case models.KindDecode:
		return status.Error(codes.FailedPrecondition, err.Error())
	case models.KindFeedbackGeneration:
		return status.Error(codes.Unavailable, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, "analysis failed")
}

func (h *GRPCHandler) Health(ctx context.Context, _ *pb.HealthRequest) (*pb.HealthResponse, error) {
	poseHealthy := false
	if h.svc.pose != nil {
		poseHealthy = h.svc.pose.HealthCheck(ctx)
	}

	state := "healthy"
	if !poseHealthy {
		state = "degraded"
	}
	h.svc.logger.Debug("health", zap.Bool("pose_service", poseHealthy))
	return &pb.HealthResponse{Status: state, Version: h.version}, nil
}
