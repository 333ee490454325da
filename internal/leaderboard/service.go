package leaderboard

import (
	"context"
	"sort"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service is the server side of the score service.
type Service interface {
	SubmitScore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TopScores(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// MemoryService keeps scores in process. It backs cmd/leaderboardd and tests.
type MemoryService struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryService() *MemoryService { return &MemoryService{} }

func (s *MemoryService) SubmitScore(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	e, err := entryFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	e.Name = SanitizeName(e.Name)
	e.Score = clampScore(e.Score)
	if e.Score == 0 {
		return nil, status.Error(codes.InvalidArgument, "score must be positive")
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool { return s.entries[i].Score > s.entries[j].Score })
	s.mu.Unlock()
	return &structpb.Struct{}, nil
}

func (s *MemoryService) TopScores(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = DefaultTopSize
	}
	s.mu.RLock()
	n := min(limit, len(s.entries))
	top := append([]Entry(nil), s.entries[:n]...)
	s.mu.RUnlock()
	resp, err := entriesToStruct(top)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// RegisterService attaches svc to a gRPC server.
func RegisterService(r grpc.ServiceRegistrar, svc Service) {
	r.RegisterService(&serviceDesc, svc)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitScore", Handler: unaryHandler(submitMethod, Service.SubmitScore)},
		{MethodName: "TopScores", Handler: unaryHandler(topScoresMethod, Service.TopScores)},
	},
	Metadata: "leaderboard/v1/leaderboard.proto",
}

type unaryMethod func(Service, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		svc := srv.(Service)
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(*structpb.Struct))
		})
	}
}
