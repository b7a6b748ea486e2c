package handlers

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/internal/resource"
	pb "github.com/Pinaire1/jujitsu-app/pkg/pb"
)

func coachClient(t *testing.T, opts Options) pb.CoachClient {
	t.Helper()
	if opts.Resolver == nil {
		opts.Resolver = localResolver{}
	}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterCoachServer(srv, NewGRPCHandler(opts))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewCoachClient(conn)
}

func TestCoachAnalyze(t *testing.T) {
	fa := &fakeAnalyzer{fn: func(_ context.Context, req analysis.Request) (*analysis.Report, error) {
		return &analysis.Report{
			ID: "a-1",
			Feedback: models.FeedbackList{
				{Timestamp: models.NotApplicable, Tip: "Tip one"},
				{Timestamp: models.NotApplicable, Tip: "Tip two"},
			},
			Source:         models.SourceGenerated,
			FallbackReason: models.FallbackNoDetection,
			FrameRate:      req.FrameRateHint,
		}, nil
	}}
	store := newMemStore()
	client := coachClient(t, Options{Analyzer: fa, Store: store})

	resp, err := client.Analyze(context.Background(), &pb.AnalyzeRequest{
		VideoPath:     "roll.mp4",
		UserID:        "u1",
		VideoID:       "v1",
		FrameRateHint: 24,
		Focus:         "escapes",
	})
	require.NoError(t, err)

	assert.Equal(t, "a-1", resp.AnalysisID)
	assert.Equal(t, "generated", resp.Source)
	assert.Equal(t, "no_detection", resp.FallbackReason)
	assert.Equal(t, 24.0, resp.FrameRate)
	assert.Equal(t, []pb.FeedbackItem{
		{Timestamp: "N/A", Tip: "Tip one"},
		{Timestamp: "N/A", Tip: "Tip two"},
	}, resp.Items)
	assert.Equal(t, "escapes", fa.last().Focus)

	_, err = store.Get(context.Background(), "u1", "v1")
	assert.NoError(t, err)
}

func TestCoachAnalyzeStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"unavailable video", models.NewError(models.KindResourceUnavailable, "resolve", errors.New("gone")), codes.InvalidArgument},
		{"undecodable", models.NewError(models.KindDecode, "decode", errors.New("bad header")), codes.FailedPrecondition},
		{"generator down", models.NewError(models.KindFeedbackGeneration, "coach", errors.New("timeout")), codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := coachClient(t, Options{Analyzer: &fakeAnalyzer{fn: failWith(tt.err)}})
			_, err := client.Analyze(context.Background(), &pb.AnalyzeRequest{VideoPath: "roll.mp4"})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}

	client := coachClient(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}})
	_, err := client.Analyze(context.Background(), &pb.AnalyzeRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCoachAnalyzeRejectsServerPaths(t *testing.T) {
	dir := t.TempDir()
	fa := &fakeAnalyzer{fn: ruleReport}
	client := coachClient(t, Options{Analyzer: fa, Resolver: resource.NewResolver(resource.Options{TempDir: dir})})

	for _, ref := range []string{"/etc/passwd", "file:///etc/passwd", dir} {
		_, err := client.Analyze(context.Background(), &pb.AnalyzeRequest{VideoPath: ref})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), ref)
	}
	assert.Empty(t, fa.reqs)
}

func TestCoachHealth(t *testing.T) {
	client := coachClient(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Pose: poseUp(true), Version: "1.2.3"})
	resp, err := client.Health(context.Background(), &pb.HealthRequest{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)

	client = coachClient(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}})
	resp, err = client.Health(context.Background(), &pb.HealthRequest{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", resp.Status)
}
