package rpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	appservice "quoteengine/pkg/quote/application/service"
	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
	"quoteengine/pkg/quote/infrastructure/transport"
)

const (
	ServiceName = "quoteengine.v1.QuoteEngine"
	errorDomain = "quoteengine"
)

// Server exposes the quote engine over gRPC. Every method takes and returns a
// google.protobuf.Struct carrying the same JSON documents as the REST API.
type Server struct {
	quotes          service.QuoteService
	pricing         service.PricingService
	weights         service.WeightsService
	recommendations appservice.RecommendationService
}

type quoteEngineServer interface {
	quoteEngine()
}

func (s *Server) quoteEngine() {}

func NewServer(
	quotes service.QuoteService,
	pricing service.PricingService,
	weights service.WeightsService,
	recommendations appservice.RecommendationService,
) *Server {
	return &Server{
		quotes:          quotes,
		pricing:         pricing,
		weights:         weights,
		recommendations: recommendations,
	}
}

func Register(registrar grpc.ServiceRegistrar, s *Server) {
	registrar.RegisterService(&serviceDesc, s)
}

type method func(s *Server, ctx context.Context, in *structpb.Struct) (interface{}, error)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*quoteEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateQuote", (*Server).createQuote),
		unary("GetQuote", (*Server).getQuote),
		unary("QuoteHistory", (*Server).quoteHistory),
		unary("TransitionQuote", (*Server).transitionQuote),
		unary("AssignSupplier", (*Server).assignSupplier),
		unary("RankSuppliersForItem", (*Server).rankSuppliersForItem),
		unary("RankSuppliersForQuote", (*Server).rankSuppliersForQuote),
		unary("ResolveLinePrice", (*Server).resolveLinePrice),
		unary("SwitchPricelist", (*Server).switchPricelist),
		unary("SetManualPrice", (*Server).setManualPrice),
		unary("ResetManualPrice", (*Server).resetManualPrice),
		unary("GetScoringWeights", (*Server).getScoringWeights),
		unary("UpdateScoringWeights", (*Server).updateScoringWeights),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quoteengine/v1/quoteengine.proto",
}

// FullMethod returns the wire name of a method, as used by clients.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary(name string, fn method) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(*Server).call(ctx, name, req.(*structpb.Struct), fn)
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (s *Server) call(ctx context.Context, name string, in *structpb.Struct, fn method) (*structpb.Struct, error) {
	log.WithField("method", name).Info("got a new rpc")

	result, err := fn(s, ctx, in)
	if err != nil {
		return nil, toStatus(ctx, name, err)
	}
	out, err := encode(result)
	if err != nil {
		return nil, toStatus(ctx, name, err)
	}
	return out, nil
}

type quoteRef struct {
	QuoteID uuid.UUID `json:"quoteId"`
}

type itemRef struct {
	QuoteID uuid.UUID `json:"quoteId"`
	ItemID  uuid.UUID `json:"itemId"`
}

func (s *Server) createQuote(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req transport.CreateQuoteRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	quote, err := s.quotes.CreateQuote(ctx, actor, req.ToNewQuote())
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) getQuote(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	var ref quoteRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	quote, err := s.quotes.GetQuote(ctx, ref.QuoteID)
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) quoteHistory(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	var ref quoteRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	records, err := s.quotes.QuoteHistory(ctx, ref.QuoteID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"transitions": transport.NewTransitionDTOs(records)}, nil
}

func (s *Server) transitionQuote(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		quoteRef
		transport.TransitionQuoteRequest
	}
	if err := decode(in, &body); err != nil {
		return nil, err
	}
	req, err := body.ToTransitionRequest(actor)
	if err != nil {
		return nil, err
	}
	quote, err := s.quotes.TransitionQuote(ctx, body.QuoteID, req)
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) assignSupplier(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		itemRef
		transport.AssignSupplierRequest
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	assignment, err := s.recommendations.SelectSupplier(ctx, req.QuoteID, req.ItemID, req.ToSupplierChoice(), actor)
	if err != nil {
		return nil, err
	}
	return transport.NewAssignmentDTO(*assignment), nil
}

func (s *Server) rankSuppliersForItem(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	var ref itemRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	rankings, err := s.recommendations.RankSuppliersForItem(ctx, ref.QuoteID, ref.ItemID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"rankings": transport.NewSupplierRankingDTOs(rankings)}, nil
}

func (s *Server) rankSuppliersForQuote(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	var ref quoteRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	rankings, err := s.recommendations.RankSuppliersForQuote(ctx, ref.QuoteID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"rankings": transport.NewQuoteRankingDTOs(rankings)}, nil
}

func (s *Server) resolveLinePrice(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	var ref itemRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	price, err := s.pricing.ResolveLinePrice(ctx, ref.QuoteID, ref.ItemID)
	if err != nil {
		return nil, err
	}
	return transport.NewPriceDTO(price), nil
}

func (s *Server) switchPricelist(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		quoteRef
		transport.SwitchPricelistRequest
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	quote, err := s.pricing.SwitchPricelist(ctx, req.QuoteID, req.PricelistID, actor)
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) setManualPrice(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		itemRef
		transport.ManualPriceRequest
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	quote, err := s.pricing.SetManualPrice(ctx, req.QuoteID, req.ItemID, req.PriceCents, actor)
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) resetManualPrice(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var ref itemRef
	if err := decode(in, &ref); err != nil {
		return nil, err
	}
	quote, err := s.pricing.ResetManualPrice(ctx, ref.QuoteID, ref.ItemID, actor)
	if err != nil {
		return nil, err
	}
	return transport.NewQuoteDTO(quote), nil
}

func (s *Server) getScoringWeights(ctx context.Context, _ *structpb.Struct) (interface{}, error) {
	weights, err := s.weights.ScoringWeights(ctx)
	if err != nil {
		return nil, err
	}
	return transport.NewWeightsDTO(weights), nil
}

func (s *Server) updateScoringWeights(ctx context.Context, in *structpb.Struct) (interface{}, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, model.ErrNotAuthorized
	}
	var req transport.WeightsDTO
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.weights.UpdateScoringWeights(ctx, req.ToScoringWeights()); err != nil {
		return nil, err
	}
	return req, nil
}

func actorFrom(ctx context.Context) (model.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return transport.ParseActor(
		first(md, transport.ActorIDHeader),
		first(md, transport.ActorKindHeader),
		first(md, transport.ActorProxyApprovalHeader),
	)
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// decode moves a Struct into a request type through its JSON form. Numbers
// travel as doubles, so cents above 2^53 are not representable.
func decode(in *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return errors.Wrap(transport.ErrBadRequest, err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(transport.ErrBadRequest, err.Error())
	}
	return nil
}

func encode(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WithStack(err)
	}
	out, err := structpb.NewStruct(m)
	return out, errors.WithStack(err)
}

func toStatus(ctx context.Context, name string, err error) error {
	kind := transport.Classify(err)
	fields := log.Fields{"kind": kind, "method": name}
	if kind == transport.KindInternal {
		log.WithError(err).WithFields(fields).Error("rpc failed")
	} else {
		log.WithError(err).WithFields(fields).Warn("rpc rejected")
	}

	md, _ := metadata.FromIncomingContext(ctx)
	st := status.New(kind.GRPCCode(), kind.Message(first(md, "accept-language")))
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: errorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// KindOf extracts the error kind a server attached to a status error.
func KindOf(err error) (transport.Kind, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return "", false
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.Domain == errorDomain {
			return transport.Kind(info.Reason), true
		}
	}
	return "", false
}
