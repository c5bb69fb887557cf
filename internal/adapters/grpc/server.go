package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/millbrook/orderdesk/internal/application"
)

// CacheInternalService is the service-to-service surface: sibling services
// ask the cache layer for health and counters without going through the
// public HTTP admin routes.
type CacheInternalService interface {
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type CacheInternalServer struct {
	service *application.Service
}

func NewCacheInternalServer(service *application.Service) *CacheInternalServer {
	return &CacheInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc CacheInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "millbrook.cache.v1.CacheInternalService",
		HandlerType: (*CacheInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetHealth",
				Handler:    getHealthHandler(svc),
			},
			{
				MethodName: "GetStats",
				Handler:    getStatsHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "contracts/proto/cache/v1/cache_internal.proto",
	}, svc)
}

func (s *CacheInternalServer) GetHealth(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report := s.service.Health(ctx)

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		checks[name] = map[string]any{
			"status": string(check.Status),
			"detail": check.Detail,
		}
	}
	resp, err := structpb.NewStruct(map[string]any{
		"status":         string(report.Status),
		"uptime_seconds": report.UptimeSeconds,
		"version":        report.Version,
		"checks":         checks,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *CacheInternalServer) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.service.Stats(ctx)

	resp, err := structpb.NewStruct(map[string]any{
		"hits":              stats.Hits,
		"misses":            stats.Misses,
		"hit_rate":          stats.HitRate,
		"store_failures":    stats.StoreFailures,
		"memory_used_bytes": stats.MemoryUsedBytes,
		"key_count":         stats.KeyCount,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func getHealthHandler(svc CacheInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetHealth(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/millbrook.cache.v1.CacheInternalService/GetHealth",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetHealth(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getStatsHandler(svc CacheInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetStats(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/millbrook.cache.v1.CacheInternalService/GetStats",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetStats(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
