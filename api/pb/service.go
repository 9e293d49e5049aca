package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	MatchingEngine_ServiceName                 = "matching_engine.v1.MatchingEngine"
	MatchingEngine_SubmitOrder_FullMethodName  = "/matching_engine.v1.MatchingEngine/SubmitOrder"
	MatchingEngine_CancelOrder_FullMethodName  = "/matching_engine.v1.MatchingEngine/CancelOrder"
	MatchingEngine_GetOrderBook_FullMethodName = "/matching_engine.v1.MatchingEngine/GetOrderBook"
)

// -------------------- Server --------------------

type MatchingEngineServer interface {
	SubmitOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelRequest) (*CancelResponse, error)
	GetOrderBook(context.Context, *OrderBookRequest) (*OrderBookResponse, error)
}

// UnimplementedMatchingEngineServer can be embedded for forward
// compatibility.
type UnimplementedMatchingEngineServer struct{}

func (UnimplementedMatchingEngineServer) SubmitOrder(context.Context, *OrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitOrder not implemented")
}

func (UnimplementedMatchingEngineServer) CancelOrder(context.Context, *CancelRequest) (*CancelResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}

func (UnimplementedMatchingEngineServer) GetOrderBook(context.Context, *OrderBookRequest) (*OrderBookResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrderBook not implemented")
}

func RegisterMatchingEngineServer(s grpc.ServiceRegistrar, srv MatchingEngineServer) {
	s.RegisterService(&MatchingEngine_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(MatchingEngineServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchingEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchingEngineServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var MatchingEngine_ServiceDesc = grpc.ServiceDesc{
	ServiceName: MatchingEngine_ServiceName,
	HandlerType: (*MatchingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitOrder",
			Handler:    unaryHandler(MatchingEngine_SubmitOrder_FullMethodName, MatchingEngineServer.SubmitOrder),
		},
		{
			MethodName: "CancelOrder",
			Handler:    unaryHandler(MatchingEngine_CancelOrder_FullMethodName, MatchingEngineServer.CancelOrder),
		},
		{
			MethodName: "GetOrderBook",
			Handler:    unaryHandler(MatchingEngine_GetOrderBook_FullMethodName, MatchingEngineServer.GetOrderBook),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matching_engine.proto",
}

// -------------------- Client --------------------

type MatchingEngineClient interface {
	SubmitOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error)
	GetOrderBook(ctx context.Context, in *OrderBookRequest, opts ...grpc.CallOption) (*OrderBookResponse, error)
}

type matchingEngineClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchingEngineClient(cc grpc.ClientConnInterface) MatchingEngineClient {
	return &matchingEngineClient{cc: cc}
}

func (c *matchingEngineClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *matchingEngineClient) SubmitOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, MatchingEngine_SubmitOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchingEngineClient) CancelOrder(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.invoke(ctx, MatchingEngine_CancelOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchingEngineClient) GetOrderBook(ctx context.Context, in *OrderBookRequest, opts ...grpc.CallOption) (*OrderBookResponse, error) {
	out := new(OrderBookResponse)
	if err := c.invoke(ctx, MatchingEngine_GetOrderBook_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
