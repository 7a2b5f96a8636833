package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/coordinator"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Backend is the coordinator state served by the query service.
type Backend interface {
	Task(taskID uint64) (model.Task, bool)
	Generations(taskID uint64) []model.Generation
	Validations(taskID uint64) []model.Validation
	BestResponse(taskID uint64) (model.Generation, error)
	GetFee(params model.TaskParameters) (total, generatorFee, validatorFee *big.Int)
	EscrowBalance(account common.Address) *big.Int
}

// Membership answers registry membership queries.
type Membership interface {
	IsRegistered(account common.Address, kind model.OracleKind) bool
}

type handlerFunc func(ctx context.Context, in *dynamicpb.Message) (any, error)

// Server serves the OracleQuery service and the standard gRPC health service.
type Server struct {
	backend Backend
	members Membership
	service protoreflect.ServiceDescriptor
	health  *health.Server
}

// NewServer compiles the embedded service definition and returns a server
// reading from backend and members.
func NewServer(backend Backend, members Membership) (*Server, error) {
	svc, err := oracleService()
	if err != nil {
		return nil, err
	}
	return &Server{
		backend: backend,
		members: members,
		service: svc,
		health:  health.NewServer(),
	}, nil
}

// Register adds the query and health services to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(s.serviceDesc(), s)
	healthpb.RegisterHealthServer(reg, s.health)
	s.health.SetServingStatus(string(s.service.FullName()), healthpb.HealthCheckResponse_SERVING)
}

// Serve listens on addr and serves until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary))
	s.Register(srv)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	zap.L().Info("gRPC query service listening", zap.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		srv.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlers() map[protoreflect.Name]handlerFunc {
	return map[protoreflect.Name]handlerFunc{
		"GetTask":          s.getTask,
		"GetGenerations":   s.getGenerations,
		"GetValidations":   s.getValidations,
		"GetBestResponse":  s.getBestResponse,
		"GetFee":           s.getFee,
		"GetEscrowBalance": s.getEscrowBalance,
		"IsRegistered":     s.isRegistered,
	}
}

// serviceDesc builds a grpc.ServiceDesc whose handlers decode requests into
// dynamic messages of the compiled method input types.
func (s *Server) serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: string(s.service.FullName()),
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    OracleProtoFile,
	}
	handlers := s.handlers()
	methods := s.service.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		h, ok := handlers[md.Name()]
		if !ok {
			continue
		}
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: string(md.Name()),
			Handler:    unaryHandler(md, h),
		})
	}
	return desc
}

func unaryHandler(md protoreflect.MethodDescriptor, h handlerFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + string(md.Parent().FullName()) + "/" + string(md.Name())
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamicpb.NewMessage(md.Input())
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			return invoke(ctx, md, h, req.(*dynamicpb.Message))
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, call)
	}
}

// invoke runs h and converts its JSON-shaped reply into the method's output
// message.
func invoke(ctx context.Context, md protoreflect.MethodDescriptor, h handlerFunc, in *dynamicpb.Message) (proto.Message, error) {
	reply, err := h(ctx, in)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	out := dynamicpb.NewMessage(md.Output())
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, status.Errorf(codes.Internal, "build %s: %v", md.Output().FullName(), err)
	}
	return out, nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
		zap.Stringer("code", status.Code(err)),
	}
	if err != nil {
		zap.L().Warn("gRPC call failed", append(fields, zap.Error(err))...)
	} else {
		zap.L().Debug("gRPC call", fields...)
	}
	return resp, err
}

func field(m *dynamicpb.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

func accountField(m *dynamicpb.Message) (common.Address, error) {
	raw := field(m, "account").String()
	if !common.IsHexAddress(raw) {
		return common.Address{}, status.Errorf(codes.InvalidArgument, "invalid account %q", raw)
	}
	return common.HexToAddress(raw), nil
}

type paramsReply struct {
	Difficulty     uint8  `json:"difficulty"`
	NumGenerations uint64 `json:"num_generations"`
	NumValidations uint64 `json:"num_validations"`
}

type taskReply struct {
	ID           uint64      `json:"id"`
	Requester    string      `json:"requester"`
	Protocol     string      `json:"protocol"`
	Input        []byte      `json:"input,omitempty"`
	Models       []byte      `json:"models,omitempty"`
	Parameters   paramsReply `json:"parameters"`
	GeneratorFee string      `json:"generator_fee"`
	ValidatorFee string      `json:"validator_fee"`
	PlatformFee  string      `json:"platform_fee"`
	Status       string      `json:"status"`
}

type generationReply struct {
	Responder string `json:"responder"`
	Nonce     string `json:"nonce"`
	Output    []byte `json:"output,omitempty"`
	Metadata  []byte `json:"metadata,omitempty"`
	Score     string `json:"score"`
}

type validationReply struct {
	Validator string   `json:"validator"`
	Nonce     string   `json:"nonce"`
	Scores    []string `json:"scores,omitempty"`
	Metadata  []byte   `json:"metadata,omitempty"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toGenerationReply(g model.Generation) generationReply {
	return generationReply{
		Responder: g.Responder.Hex(),
		Nonce:     amount(g.Nonce),
		Output:    g.Output,
		Metadata:  g.Metadata,
		Score:     amount(g.Score),
	}
}

func (s *Server) getTask(_ context.Context, in *dynamicpb.Message) (any, error) {
	id := field(in, "task_id").Uint()
	task, ok := s.backend.Task(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "task %d not found", id)
	}
	return taskReply{
		ID:        task.ID,
		Requester: task.Requester.Hex(),
		Protocol:  model.ProtocolName(task.Protocol),
		Input:     task.Input,
		Models:    task.Models,
		Parameters: paramsReply{
			Difficulty:     task.Parameters.Difficulty,
			NumGenerations: task.Parameters.NumGenerations,
			NumValidations: task.Parameters.NumValidations,
		},
		GeneratorFee: amount(task.GeneratorFee),
		ValidatorFee: amount(task.ValidatorFee),
		PlatformFee:  amount(task.PlatformFee),
		Status:       task.Status.String(),
	}, nil
}

func (s *Server) getGenerations(_ context.Context, in *dynamicpb.Message) (any, error) {
	gens := s.backend.Generations(field(in, "task_id").Uint())
	out := make([]generationReply, 0, len(gens))
	for _, g := range gens {
		out = append(out, toGenerationReply(g))
	}
	return map[string]any{"generations": out}, nil
}

func (s *Server) getValidations(_ context.Context, in *dynamicpb.Message) (any, error) {
	vals := s.backend.Validations(field(in, "task_id").Uint())
	out := make([]validationReply, 0, len(vals))
	for _, v := range vals {
		scores := make([]string, len(v.Scores))
		for i, sc := range v.Scores {
			scores[i] = amount(sc)
		}
		out = append(out, validationReply{
			Validator: v.Validator.Hex(),
			Nonce:     amount(v.Nonce),
			Scores:    scores,
			Metadata:  v.Metadata,
		})
	}
	return map[string]any{"validations": out}, nil
}

func (s *Server) getBestResponse(_ context.Context, in *dynamicpb.Message) (any, error) {
	id := field(in, "task_id").Uint()
	g, err := s.backend.BestResponse(id)
	if err != nil {
		if errors.Is(err, coordinator.ErrInvalidTaskStatus) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toGenerationReply(g), nil
}

func (s *Server) getFee(_ context.Context, in *dynamicpb.Message) (any, error) {
	difficulty := field(in, "difficulty").Uint()
	if difficulty > math.MaxUint8 {
		return nil, status.Errorf(codes.InvalidArgument, "difficulty %d out of range", difficulty)
	}
	total, gen, val := s.backend.GetFee(model.TaskParameters{
		Difficulty:     uint8(difficulty),
		NumGenerations: field(in, "num_generations").Uint(),
		NumValidations: field(in, "num_validations").Uint(),
	})
	return map[string]string{
		"total":         amount(total),
		"generator_fee": amount(gen),
		"validator_fee": amount(val),
	}, nil
}

func (s *Server) getEscrowBalance(_ context.Context, in *dynamicpb.Message) (any, error) {
	acct, err := accountField(in)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"account": acct.Hex(),
		"balance": amount(s.backend.EscrowBalance(acct)),
	}, nil
}

func (s *Server) isRegistered(_ context.Context, in *dynamicpb.Message) (any, error) {
	acct, err := accountField(in)
	if err != nil {
		return nil, err
	}
	kind, err := model.ParseOracleKind(field(in, "kind").String())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return map[string]bool{"registered": s.members.IsRegistered(acct, kind)}, nil
}
