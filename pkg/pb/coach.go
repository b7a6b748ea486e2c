package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	Coach_Analyze_FullMethodName = "/coach.v1.Coach/Analyze"
	Coach_Health_FullMethodName  = "/coach.v1.Coach/Health"
)

var (
	coachFile = mustBuildFile(&descriptorpb.FileDescriptorProto{
		Name:    proto.String("coach/v1/coach.proto"),
		Package: proto.String("coach.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("AnalyzeRequest",
				scalar("video_path", 1, typeString),
				scalar("user_id", 2, typeString),
				scalar("video_id", 3, typeString),
				scalar("frame_rate_hint", 4, typeDouble),
				scalar("focus", 5, typeString),
			),
			message("FeedbackItem",
				scalar("timestamp", 1, typeString),
				scalar("tip", 2, typeString),
			),
			message("AnalyzeResponse",
				scalar("analysis_id", 1, typeString),
				scalar("source", 2, typeString),
				scalar("fallback_reason", 3, typeString),
				scalar("partial", 4, typeBool),
				scalar("frame_rate", 5, typeDouble),
				repeated("items", 6, ".coach.v1.FeedbackItem"),
			),
			message("HealthRequest"),
			message("HealthResponse",
				scalar("status", 1, typeString),
				scalar("version", 2, typeString),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Coach"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Analyze", ".coach.v1.AnalyzeRequest", ".coach.v1.AnalyzeResponse"),
				method("Health", ".coach.v1.HealthRequest", ".coach.v1.HealthResponse"),
			},
		}},
	})

	analyzeRequestDesc      = mustMessage(coachFile, "AnalyzeRequest")
	analyzeResponseDesc     = mustMessage(coachFile, "AnalyzeResponse")
	coachHealthRequestDesc  = mustMessage(coachFile, "HealthRequest")
	coachHealthResponseDesc = mustMessage(coachFile, "HealthResponse")
)

type AnalyzeRequest struct {
	VideoPath     string
	UserID        string
	VideoID       string
	FrameRateHint float64
	Focus         string
}

// FeedbackItem is one coaching tip. Timestamp is seconds with two decimals,
// MM:SS, or "N/A" for generated tips.
type FeedbackItem struct {
	Timestamp string
	Tip       string
}

type AnalyzeResponse struct {
	AnalysisID     string
	Source         string
	FallbackReason string
	Partial        bool
	FrameRate      float64
	Items          []FeedbackItem
}

func (r *AnalyzeRequest) encode() fields {
	f := newFields(analyzeRequestDesc)
	if r == nil {
		return f
	}
	f.set("video_path", protoreflect.ValueOfString(r.VideoPath))
	f.set("user_id", protoreflect.ValueOfString(r.UserID))
	f.set("video_id", protoreflect.ValueOfString(r.VideoID))
	f.set("frame_rate_hint", protoreflect.ValueOfFloat64(r.FrameRateHint))
	f.set("focus", protoreflect.ValueOfString(r.Focus))
	return f
}

func decodeAnalyzeRequest(f fields) *AnalyzeRequest {
	return &AnalyzeRequest{
		VideoPath:     f.str("video_path"),
		UserID:        f.str("user_id"),
		VideoID:       f.str("video_id"),
		FrameRateHint: f.double("frame_rate_hint"),
		Focus:         f.str("focus"),
	}
}

func (r *AnalyzeResponse) encode() fields {
	f := newFields(analyzeResponseDesc)
	if r == nil {
		return f
	}
	f.set("analysis_id", protoreflect.ValueOfString(r.AnalysisID))
	f.set("source", protoreflect.ValueOfString(r.Source))
	f.set("fallback_reason", protoreflect.ValueOfString(r.FallbackReason))
	f.set("partial", protoreflect.ValueOfBool(r.Partial))
	f.set("frame_rate", protoreflect.ValueOfFloat64(r.FrameRate))
	for _, item := range r.Items {
		el := f.appendMessage("items")
		el.set("timestamp", protoreflect.ValueOfString(item.Timestamp))
		el.set("tip", protoreflect.ValueOfString(item.Tip))
	}
	return f
}

func decodeAnalyzeResponse(f fields) *AnalyzeResponse {
	resp := &AnalyzeResponse{
		AnalysisID:     f.str("analysis_id"),
		Source:         f.str("source"),
		FallbackReason: f.str("fallback_reason"),
		Partial:        f.boolean("partial"),
		FrameRate:      f.double("frame_rate"),
	}
	l := f.list("items")
	for i := 0; i < l.Len(); i++ {
		el := fields{m: l.Get(i).Message()}
		resp.Items = append(resp.Items, FeedbackItem{Timestamp: el.str("timestamp"), Tip: el.str("tip")})
	}
	return resp
}

type CoachClient interface {
	Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error)
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
}

type coachClient struct {
	cc grpc.ClientConnInterface
}

func NewCoachClient(cc grpc.ClientConnInterface) CoachClient {
	return &coachClient{cc}
}

func (c *coachClient) Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error) {
	out, err := invoke(ctx, c.cc, Coach_Analyze_FullMethodName, in.encode(), analyzeResponseDesc, opts...)
	if err != nil {
		return nil, err
	}
	return decodeAnalyzeResponse(out), nil
}

func (c *coachClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out, err := invoke(ctx, c.cc, Coach_Health_FullMethodName, newFields(coachHealthRequestDesc), coachHealthResponseDesc, opts...)
	if err != nil {
		return nil, err
	}
	return decodeHealthResponse(out), nil
}

type CoachServer interface {
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

type UnimplementedCoachServer struct{}

func (UnimplementedCoachServer) Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Analyze not implemented")
}

func (UnimplementedCoachServer) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}

func RegisterCoachServer(s grpc.ServiceRegistrar, srv CoachServer) {
	s.RegisterService(&coachServiceDesc, srv)
}

var coachServiceDesc = grpc.ServiceDesc{
	ServiceName: "coach.v1.Coach",
	HandlerType: (*CoachServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler: unaryHandler(Coach_Analyze_FullMethodName, analyzeRequestDesc, decodeAnalyzeRequest,
				func(srv any, ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
					return srv.(CoachServer).Analyze(ctx, req)
				},
				(*AnalyzeResponse).encode),
		},
		{
			MethodName: "Health",
			Handler: unaryHandler(Coach_Health_FullMethodName, coachHealthRequestDesc,
				func(fields) *HealthRequest { return &HealthRequest{} },
				func(srv any, ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
					return srv.(CoachServer).Health(ctx, req)
				},
				func(r *HealthResponse) fields { return encodeHealthResponse(coachHealthResponseDesc, r) }),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coach/v1/coach.proto",
}
