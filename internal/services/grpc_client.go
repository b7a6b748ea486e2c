package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/pkg/pb"
)

type PoseClientOptions struct {
	Timeout       time.Duration
	MinVisibility float64
	Metrics       *Metrics
	Logger        *zap.Logger
	DialOptions   []grpc.DialOption
}

// PoseClient talks to the pose sidecar and implements pose.Model.
type PoseClient struct {
	conn          *grpc.ClientConn
	client        pb.PoseEstimatorClient
	url           string
	timeout       time.Duration
	minVisibility float64
	metrics       *Metrics
	logger        *zap.Logger
}

func NewPoseClient(url string, opts PoseClientOptions) (*PoseClient, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger.With(zap.String("component", "pose_client"), zap.String("addr", url))
	logger.Info("connecting to pose service")

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(pb.MaxMessageSize),
			grpc.MaxCallSendMsgSize(pb.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(url, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create pose client for %s: %w", url, err)
	}

	return &PoseClient{
		conn:          conn,
		client:        pb.NewPoseEstimatorClient(conn),
		url:           url,
		timeout:       opts.Timeout,
		minVisibility: opts.MinVisibility,
		metrics:       opts.Metrics,
		logger:        logger,
	}, nil
}

// Detect sends one frame to the sidecar. A response without a usable joint
// is reported as no observation.
func (pc *PoseClient) Detect(ctx context.Context, frame models.Frame) (*models.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	start := time.Now()
	resp, err := pc.client.Detect(ctx, &pb.DetectRequest{
		FrameIndex: int64(frame.Index),
		Width:      int32(frame.Width),
		Height:     int32(frame.Height),
		Format:     string(frame.Format),
		Image:      frame.Data,
	})
	if pc.metrics != nil {
		pc.metrics.RecordPoseRequest(status.Code(err).String(), time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("could not detect pose on frame %d: %w", frame.Index, err)
	}

	return pc.toObservation(frame.Index, resp), nil
}

func (pc *PoseClient) toObservation(frameIndex int, resp *pb.DetectResponse) *models.Observation {
	if !resp.Detected {
		return nil
	}
	landmarks := make(map[models.Joint]models.Landmark, len(resp.Landmarks))
	for _, lm := range resp.Landmarks {
		joint := models.Joint(strings.ToUpper(strings.TrimSpace(lm.Name)))
		if !joint.Valid() {
			continue
		}
		if lm.Visibility < pc.minVisibility {
			continue
		}
		landmarks[joint] = models.Landmark{X: clamp01(lm.X), Y: clamp01(lm.Y), Visibility: lm.Visibility}
	}
	if len(landmarks) == 0 {
		return nil
	}
	return &models.Observation{FrameIndex: frameIndex, Landmarks: landmarks}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (pc *PoseClient) Health(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := pc.client.Health(ctx, &pb.HealthRequest{})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (pc *PoseClient) HealthCheck(ctx context.Context) bool {
	_, err := pc.Health(ctx)
	return err == nil
}

func (pc *PoseClient) Addr() string { return pc.url }

func (pc *PoseClient) Close() error {
	if pc.conn != nil {
		return pc.conn.Close()
	}
	return nil
}
