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
	PoseEstimator_Detect_FullMethodName = "/pose.v1.PoseEstimator/Detect"
	PoseEstimator_Health_FullMethodName = "/pose.v1.PoseEstimator/Health"
)

var (
	poseFile = mustBuildFile(&descriptorpb.FileDescriptorProto{
		Name:    proto.String("pose/v1/pose.proto"),
		Package: proto.String("pose.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("DetectRequest",
				scalar("frame_index", 1, typeInt64),
				scalar("width", 2, typeInt32),
				scalar("height", 3, typeInt32),
				scalar("format", 4, typeString),
				scalar("image", 5, typeBytes),
			),
			message("Landmark",
				scalar("name", 1, typeString),
				scalar("x", 2, typeDouble),
				scalar("y", 3, typeDouble),
				scalar("visibility", 4, typeDouble),
			),
			message("DetectResponse",
				scalar("frame_index", 1, typeInt64),
				scalar("detected", 2, typeBool),
				repeated("landmarks", 3, ".pose.v1.Landmark"),
			),
			message("HealthRequest"),
			message("HealthResponse",
				scalar("status", 1, typeString),
				scalar("version", 2, typeString),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("PoseEstimator"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Detect", ".pose.v1.DetectRequest", ".pose.v1.DetectResponse"),
				method("Health", ".pose.v1.HealthRequest", ".pose.v1.HealthResponse"),
			},
		}},
	})

	detectRequestDesc      = mustMessage(poseFile, "DetectRequest")
	detectResponseDesc     = mustMessage(poseFile, "DetectResponse")
	poseHealthRequestDesc  = mustMessage(poseFile, "HealthRequest")
	poseHealthResponseDesc = mustMessage(poseFile, "HealthResponse")
)

// DetectRequest carries one decoded frame to the pose sidecar.
type DetectRequest struct {
	FrameIndex int64
	Width      int32
	Height     int32
	Format     string
	Image      []byte
}

type Landmark struct {
	Name       string
	X          float64
	Y          float64
	Visibility float64
}

// DetectResponse reports the landmarks found on a frame. Detected is false
// when no body was found; Landmarks is then empty.
type DetectResponse struct {
	FrameIndex int64
	Detected   bool
	Landmarks  []Landmark
}

type HealthRequest struct{}

type HealthResponse struct {
	Status  string
	Version string
}

func (r *DetectRequest) encode() fields {
	f := newFields(detectRequestDesc)
	if r == nil {
		return f
	}
	f.set("frame_index", protoreflect.ValueOfInt64(r.FrameIndex))
	f.set("width", protoreflect.ValueOfInt32(r.Width))
	f.set("height", protoreflect.ValueOfInt32(r.Height))
	f.set("format", protoreflect.ValueOfString(r.Format))
	f.set("image", protoreflect.ValueOfBytes(r.Image))
	return f
}

func decodeDetectRequest(f fields) *DetectRequest {
	return &DetectRequest{
		FrameIndex: f.integer("frame_index"),
		Width:      int32(f.integer("width")),
		Height:     int32(f.integer("height")),
		Format:     f.str("format"),
		Image:      f.bytes("image"),
	}
}

func (r *DetectResponse) encode() fields {
	f := newFields(detectResponseDesc)
	if r == nil {
		return f
	}
	f.set("frame_index", protoreflect.ValueOfInt64(r.FrameIndex))
	f.set("detected", protoreflect.ValueOfBool(r.Detected))
	for _, lm := range r.Landmarks {
		el := f.appendMessage("landmarks")
		el.set("name", protoreflect.ValueOfString(lm.Name))
		el.set("x", protoreflect.ValueOfFloat64(lm.X))
		el.set("y", protoreflect.ValueOfFloat64(lm.Y))
		el.set("visibility", protoreflect.ValueOfFloat64(lm.Visibility))
	}
	return f
}

func decodeDetectResponse(f fields) *DetectResponse {
	resp := &DetectResponse{
		FrameIndex: f.integer("frame_index"),
		Detected:   f.boolean("detected"),
	}
	l := f.list("landmarks")
	for i := 0; i < l.Len(); i++ {
		el := fields{m: l.Get(i).Message()}
		resp.Landmarks = append(resp.Landmarks, Landmark{
			Name:       el.str("name"),
			X:          el.double("x"),
			Y:          el.double("y"),
			Visibility: el.double("visibility"),
		})
	}
	return resp
}

func encodeHealthResponse(md protoreflect.MessageDescriptor, r *HealthResponse) fields {
	f := newFields(md)
	if r == nil {
		return f
	}
	f.set("status", protoreflect.ValueOfString(r.Status))
	f.set("version", protoreflect.ValueOfString(r.Version))
	return f
}

func decodeHealthResponse(f fields) *HealthResponse {
	return &HealthResponse{Status: f.str("status"), Version: f.str("version")}
}

type PoseEstimatorClient interface {
	Detect(ctx context.Context, in *DetectRequest, opts ...grpc.CallOption) (*DetectResponse, error)
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
}

type poseEstimatorClient struct {
	cc grpc.ClientConnInterface
}

func NewPoseEstimatorClient(cc grpc.ClientConnInterface) PoseEstimatorClient {
	return &poseEstimatorClient{cc}
}

func (c *poseEstimatorClient) Detect(ctx context.Context, in *DetectRequest, opts ...grpc.CallOption) (*DetectResponse, error) {
	out, err := invoke(ctx, c.cc, PoseEstimator_Detect_FullMethodName, in.encode(), detectResponseDesc, opts...)
	if err != nil {
		return nil, err
	}
	return decodeDetectResponse(out), nil
}

func (c *poseEstimatorClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out, err := invoke(ctx, c.cc, PoseEstimator_Health_FullMethodName, newFields(poseHealthRequestDesc), poseHealthResponseDesc, opts...)
	if err != nil {
		return nil, err
	}
	return decodeHealthResponse(out), nil
}

// PoseEstimatorServer is implemented by the pose sidecar. The Go side only
// serves it in tests and local fakes.
type PoseEstimatorServer interface {
	Detect(context.Context, *DetectRequest) (*DetectResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

type UnimplementedPoseEstimatorServer struct{}

func (UnimplementedPoseEstimatorServer) Detect(context.Context, *DetectRequest) (*DetectResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Detect not implemented")
}

func (UnimplementedPoseEstimatorServer) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}

func RegisterPoseEstimatorServer(s grpc.ServiceRegistrar, srv PoseEstimatorServer) {
	s.RegisterService(&poseEstimatorServiceDesc, srv)
}

var poseEstimatorServiceDesc = grpc.ServiceDesc{
	ServiceName: "pose.v1.PoseEstimator",
	HandlerType: (*PoseEstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler: unaryHandler(PoseEstimator_Detect_FullMethodName, detectRequestDesc, decodeDetectRequest,
				func(srv any, ctx context.Context, req *DetectRequest) (*DetectResponse, error) {
					return srv.(PoseEstimatorServer).Detect(ctx, req)
				},
				(*DetectResponse).encode),
		},
		{
			MethodName: "Health",
			Handler: unaryHandler(PoseEstimator_Health_FullMethodName, poseHealthRequestDesc,
				func(fields) *HealthRequest { return &HealthRequest{} },
				func(srv any, ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
					return srv.(PoseEstimatorServer).Health(ctx, req)
				},
				func(r *HealthResponse) fields { return encodeHealthResponse(poseHealthResponseDesc, r) }),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pose/v1/pose.proto",
}
