// Package pb holds the wire schemas for the pose sidecar and the coach API.
//
// The schemas mirror pose/v1/pose.proto and coach/v1/coach.proto. They are
// assembled from descriptor protos at init and carried as dynamic messages,
// so the package needs no generated code; the exported Go structs are the
// only types callers touch.
package pb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// MaxMessageSize bounds frames and responses on both services.
const MaxMessageSize = 50 * 1024 * 1024

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	typeString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	typeBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	typeBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
	typeInt64  = descriptorpb.FieldDescriptorProto_TYPE_INT64
	typeDouble = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
)

func scalar(name string, number int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeated(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func method(name, input, output string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(input),
		OutputType: proto.String(output),
	}
}

func mustBuildFile(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("pb: invalid descriptor %s: %v", fdp.GetName(), err))
	}
	return fd
}

func mustMessage(fd protoreflect.FileDescriptor, name protoreflect.Name) protoreflect.MessageDescriptor {
	md := fd.Messages().ByName(name)
	if md == nil {
		panic(fmt.Sprintf("pb: message %s missing from %s", name, fd.Path()))
	}
	return md
}

// fields is a small accessor over a dynamic message that looks fields up by name.
type fields struct {
	m protoreflect.Message
}

func newFields(md protoreflect.MessageDescriptor) fields {
	return fields{m: dynamicpb.NewMessage(md)}
}

func (f fields) fd(name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := f.m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("pb: field %s missing from %s", name, f.m.Descriptor().FullName()))
	}
	return fd
}

func (f fields) set(name protoreflect.Name, v protoreflect.Value) { f.m.Set(f.fd(name), v) }

func (f fields) str(name protoreflect.Name) string     { return f.m.Get(f.fd(name)).String() }
func (f fields) bytes(name protoreflect.Name) []byte   { return f.m.Get(f.fd(name)).Bytes() }
func (f fields) boolean(name protoreflect.Name) bool   { return f.m.Get(f.fd(name)).Bool() }
func (f fields) integer(name protoreflect.Name) int64  { return f.m.Get(f.fd(name)).Int() }
func (f fields) double(name protoreflect.Name) float64 { return f.m.Get(f.fd(name)).Float() }

func (f fields) list(name protoreflect.Name) protoreflect.List {
	return f.m.Get(f.fd(name)).List()
}

// appendMessage adds an element to a repeated message field and returns it.
func (f fields) appendMessage(name protoreflect.Name) fields {
	l := f.m.Mutable(f.fd(name)).List()
	el := l.NewElement()
	l.Append(el)
	return fields{m: el.Message()}
}

func (f fields) proto() proto.Message { return f.m.Interface() }

func fromProto(m any) (fields, error) {
	pm, ok := m.(proto.Message)
	if !ok {
		return fields{}, fmt.Errorf("pb: unexpected message type %T", m)
	}
	return fields{m: pm.ProtoReflect()}, nil
}

// unaryHandler adapts a typed server method to grpc's MethodHandler. Requests
// arrive as dynamic messages of type in and are decoded before the call.
func unaryHandler[Req, Resp any](
	fullMethod string,
	in protoreflect.MessageDescriptor,
	decode func(fields) Req,
	call func(srv any, ctx context.Context, req Req) (Resp, error),
	encode func(Resp) fields,
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		msg := dynamicpb.NewMessage(in)
		if err := dec(msg); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			f, err := fromProto(req)
			if err != nil {
				return nil, err
			}
			resp, err := call(srv, ctx, decode(f))
			if err != nil {
				return nil, err
			}
			return encode(resp).proto(), nil
		}
		if interceptor == nil {
			return handler(ctx, msg)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, msg, info, handler)
	}
}

// invoke runs a unary call with dynamic request and response messages.
func invoke(ctx context.Context, cc grpc.ClientConnInterface, fullMethod string, req fields, out protoreflect.MessageDescriptor, opts ...grpc.CallOption) (fields, error) {
	resp := newFields(out)
	if err := cc.Invoke(ctx, fullMethod, req.proto(), resp.proto(), opts...); err != nil {
		return fields{}, err
	}
	return resp, nil
}
