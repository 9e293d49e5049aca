package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	pb "matchbook/api/pb"
	"matchbook/domain/orderbook"
	"matchbook/domain/price"
	"matchbook/service"
)

// Server adapts service.Engine to gRPC.
type Server struct {
	pb.UnimplementedMatchingEngineServer
	engine       *service.Engine
	defaultDepth int
	log          *zap.Logger
}

func NewServer(engine *service.Engine, defaultDepth int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, defaultDepth: service.DepthOrAll(defaultDepth), log: log}
}

// NewGRPCServer builds a grpc.Server with the engine service, the standard
// health service and the logging interceptor registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(srv.log))}, opts...)
	g := grpc.NewServer(opts...)

	pb.RegisterMatchingEngineServer(g, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(pb.MatchingEngine_ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)

	return g, hs
}

// -------------------- Commands --------------------

func (s *Server) SubmitOrder(ctx context.Context, req *pb.OrderRequest) (*pb.OrderResponse, error) {
	side, err := toSide(req.Side)
	if err != nil {
		return &pb.OrderResponse{Success: false, ErrorMessage: err.Error()}, nil
	}
	typ, err := toType(req.OrderType)
	if err != nil {
		return &pb.OrderResponse{Success: false, ErrorMessage: err.Error()}, nil
	}

	res, err := s.engine.Submit(ctx, orderbook.Intent{
		ClientID: req.ClientId,
		Symbol:   req.Symbol,
		Side:     side,
		Type:     typ,
		RawPrice: req.Price,
		Scale:    int(req.Scale),
		Quantity: req.Quantity,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	if !res.Accepted {
		return &pb.OrderResponse{Success: false, ErrorMessage: res.Reason}, nil
	}

	resp := &pb.OrderResponse{
		OrderId:           pb.FormatOrderID(res.OrderID),
		Success:           true,
		Status:            res.Status.String(),
		FilledQuantity:    res.Filled,
		RemainingQuantity: res.Remaining,
		Fills:             make([]*pb.Fill, 0, len(res.Fills)),
	}
	for _, f := range res.Fills {
		resp.Fills = append(resp.Fills, &pb.Fill{
			MakerOrderId: pb.FormatOrderID(f.MakerID),
			Price:        f.Price,
			Scale:        price.CanonicalScale,
			Quantity:     f.Quantity,
		})
	}
	return resp, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *pb.CancelRequest) (*pb.CancelResponse, error) {
	id, err := pb.ParseOrderID(req.OrderId)
	if err != nil {
		return &pb.CancelResponse{Success: false, ErrorMessage: err.Error()}, nil
	}

	ok, err := s.engine.Cancel(ctx, req.Symbol, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return &pb.CancelResponse{Success: false, ErrorMessage: "order is not resting"}, nil
	}
	return &pb.CancelResponse{Success: true}, nil
}

// -------------------- Queries --------------------

func (s *Server) GetOrderBook(ctx context.Context, req *pb.OrderBookRequest) (*pb.OrderBookResponse, error) {
	if orderbook.NormalizeSymbol(req.Symbol) == "" {
		return nil, status.Error(codes.InvalidArgument, orderbook.ErrInvalidSymbol.Error())
	}
	// 0 is the unset proto value; ask for -1 to get every level.
	depth := int(req.Depth)
	if depth == 0 {
		depth = s.defaultDepth
	}

	bids, asks := s.engine.Snapshot(req.Symbol, depth)
	return &pb.OrderBookResponse{
		Symbol: orderbook.NormalizeSymbol(req.Symbol),
		Scale:  price.CanonicalScale,
		Bids:   fromLevels(bids),
		Asks:   fromLevels(asks),
	}, nil
}

// -------------------- Interceptor --------------------

// UnaryInterceptor logs every call and turns a panic into codes.Internal.
func UnaryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			log.Info("rpc",
				zap.String("method", info.FullMethod),
				zap.Duration("took", time.Since(start)),
				zap.Stringer("code", status.Code(err)),
			)
		}()
		return handler(ctx, req)
	}
}

// -------------------- Converters --------------------

func toStatus(err error) error {
	switch {
	case service.IsRetriable(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, orderbook.ErrInvariant), errors.Is(err, orderbook.ErrDuplicateOrder):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toSide(s pb.Side) (orderbook.Side, error) {
	switch s {
	case pb.Side_BUY:
		return orderbook.Buy, nil
	case pb.Side_SELL:
		return orderbook.Sell, nil
	default:
		return orderbook.ParseSide(string(s))
	}
}

func toType(t pb.OrderType) (orderbook.OrderType, error) {
	switch t {
	case pb.OrderType_LIMIT:
		return orderbook.Limit, nil
	case pb.OrderType_MARKET:
		return orderbook.Market, nil
	default:
		return orderbook.ParseOrderType(string(t))
	}
}

func fromLevels(in []orderbook.Level) []*pb.Level {
	out := make([]*pb.Level, 0, len(in))
	for _, l := range in {
		out = append(out, &pb.Level{
			Price:    l.Price,
			Quantity: l.Quantity,
			Orders:   int32(l.Orders),
		})
	}
	return out
}
