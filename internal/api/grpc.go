package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"montewalk/internal/domain"
	"montewalk/internal/tools"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "montewalk.v1.Analytics"

// ErrorDomain tags the ErrorInfo detail attached to failed calls.
const ErrorDomain = "montewalk"

// Full method names.
const (
	CallMethod      = "/" + ServiceName + "/Call"
	ListToolsMethod = "/" + ServiceName + "/ListTools"
)

// AnalyticsServer is the server API for the Analytics service. Call takes
// {"tool": name, "args": {...}} and returns the tool result as a struct.
type AnalyticsServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTools(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// AnalyticsServiceDesc describes the Analytics service for grpc.Server.
var AnalyticsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
		{MethodName: "ListTools", Handler: listToolsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "montewalk/v1/analytics.proto",
}

// RegisterAnalyticsServer registers srv with s.
func RegisterAnalyticsServer(s grpc.ServiceRegistrar, srv AnalyticsServer) {
	s.RegisterService(&AnalyticsServiceDesc, srv)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CallMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyticsServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListToolsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyticsServer).ListTools(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyticsService serves the tools over gRPC.
type AnalyticsService struct {
	tools *tools.Service
}

// NewAnalyticsService creates an AnalyticsService backed by svc.
func NewAnalyticsService(svc *tools.Service) *AnalyticsService {
	return &AnalyticsService{tools: svc}
}

// Call runs one tool.
func (a *AnalyticsService) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name := in.GetFields()["tool"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, `missing "tool" field`)
	}
	var args json.RawMessage
	if v, ok := in.GetFields()["args"]; ok {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "encode args: %v", err)
		}
		args = raw
	}
	resp, err := a.tools.Call(ctx, name, args)
	if err != nil {
		return nil, StatusError(err)
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s result: %v", name, err)
	}
	return out, nil
}

// ListTools enumerates the registered tools as {"tools": [{name, description}]}.
func (a *AnalyticsService) ListTools(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(struct {
		Tools []tools.Info `json:"tools"`
	}{a.tools.List()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode tools: %v", err)
	}
	return out, nil
}

// toStruct converts a JSON-serializable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return out, nil
}

// Code maps an error onto a gRPC status code.
func Code(err error) codes.Code {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidParameter):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrNonPositiveDefinite):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrDataUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// StatusError converts err into a gRPC status carrying an ErrorInfo detail
// whose reason is the error kind and whose metadata holds the subject.
func StatusError(err error) error {
	st := status.New(Code(err), err.Error())
	info := &errdetails.ErrorInfo{Reason: domain.KindName(err), Domain: ErrorDomain}
	if errors.Is(err, tools.ErrUnknownTool) {
		info.Reason = "UnknownTool"
	}
	if subject := domain.Subject(err); subject != "" {
		info.Metadata = map[string]string{"subject": subject}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		st = detailed
	}
	return st.Err()
}

// LoggingInterceptor logs each unary call with its status code.
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		ev := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			ev = logger.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("elapsed", time.Since(start)).
			Msg("grpc call")
		return resp, err
	}
}

// AnalyticsClient is the client API for the Analytics service.
type AnalyticsClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyticsClient wraps cc.
func NewAnalyticsClient(cc grpc.ClientConnInterface) *AnalyticsClient {
	return &AnalyticsClient{cc: cc}
}

// Call invokes tool with args and returns the raw result struct.
func (c *AnalyticsClient) Call(ctx context.Context, tool string, args map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"tool": tool})
	if err != nil {
		return nil, err
	}
	if args != nil {
		a, err := structpb.NewStruct(args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		in.Fields["args"] = structpb.NewStructValue(a)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CallMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTools returns the server's tool list.
func (c *AnalyticsClient) ListTools(ctx context.Context, opts ...grpc.CallOption) ([]tools.Info, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListToolsMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	raw, err := out.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Tools []tools.Info `json:"tools"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	return resp.Tools, nil
}

// ErrorInfo extracts the kind and subject from a status error returned by
// the Analytics service.
func ErrorInfo(err error) (kind, subject string) {
	st, ok := status.FromError(err)
	if !ok {
		return "", ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason(), info.GetMetadata()["subject"]
		}
	}
	return "", ""
}
