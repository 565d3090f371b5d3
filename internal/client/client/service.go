package client

import (
	"context"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"google.golang.org/grpc"
)

const serviceName = "gophscan.v1.TicketService"

// Full method names of the ticket service.
const (
	MethodPing                = "/" + serviceName + "/Ping"
	MethodRedeem              = "/" + serviceName + "/Redeem"
	MethodSearch              = "/" + serviceName + "/Search"
	MethodCheckInListStatus   = "/" + serviceName + "/CheckInListStatus"
	MethodQuestions           = "/" + serviceName + "/Questions"
	MethodUploadFailedCheckIn = "/" + serviceName + "/UploadFailedCheckIn"
)

// TicketServiceServer is the server side of the ticket service.
type TicketServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Redeem(context.Context, *RedeemRequest) (*models.RedemptionResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	CheckInListStatus(context.Context, *StatusRequest) (*models.CheckInListStatus, error)
	Questions(context.Context, *QuestionsRequest) (*QuestionsResponse, error)
	UploadFailedCheckIn(context.Context, *FailedCheckInRequest) (*FailedCheckInResponse, error)
}

// RegisterTicketServiceServer registers srv on s. Clients must use the JSON
// content subtype, as GRPCClient does.
func RegisterTicketServiceServer(s grpc.ServiceRegistrar, srv TicketServiceServer) {
	s.RegisterService(&ticketServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(TicketServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TicketServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TicketServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ticketServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TicketServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unaryHandler(MethodPing, TicketServiceServer.Ping)},
		{MethodName: "Redeem", Handler: unaryHandler(MethodRedeem, TicketServiceServer.Redeem)},
		{MethodName: "Search", Handler: unaryHandler(MethodSearch, TicketServiceServer.Search)},
		{MethodName: "CheckInListStatus", Handler: unaryHandler(MethodCheckInListStatus, TicketServiceServer.CheckInListStatus)},
		{MethodName: "Questions", Handler: unaryHandler(MethodQuestions, TicketServiceServer.Questions)},
		{MethodName: "UploadFailedCheckIn", Handler: unaryHandler(MethodUploadFailedCheckIn, TicketServiceServer.UploadFailedCheckIn)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophscan/v1/ticket_service.proto",
}
