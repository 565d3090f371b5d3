package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	deviceToken string
}

func withDeviceToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.DeviceTokenHeaderName)
	md.Set(common.DeviceTokenHeaderName, "Device "+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) deviceTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.deviceToken != "" {
		ctx = withDeviceToken(ctx, s.deviceToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a client for the ticket service at endpointURL.
// Extra dial options are appended to the defaults (tests pass a bufconn
// dialer).
func NewGRPCClient(endpointURL, deviceToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, deviceToken: deviceToken}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.deviceTokenInterceptor),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(endpointURL, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp := &PingResponse{}
	if err := s.conn.Invoke(ctx, MethodPing, &PingRequest{}, resp); err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Redeem(ctx context.Context, sel models.Selection, secret string, req models.RedemptionRequest) (*models.RedemptionResponse, error) {
	in := &RedeemRequest{
		EventSlug:     sel.EventSlug,
		CheckInListID: sel.CheckInListID,
		Secret:        secret,
		Request:       req,
	}
	resp := &models.RedemptionResponse{}
	if err := s.conn.Invoke(ctx, MethodRedeem, in, resp); err != nil {
		return nil, s.mapError(err)
	}
	if !resp.Outcome.Known() {
		return nil, fmt.Errorf("redeem: unknown status %q: %w", resp.Outcome, common.ErrMalformedPayload)
	}
	return resp, nil
}

func (s *GRPCClient) Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error) {
	in := &SearchRequest{EventSlug: sel.EventSlug, CheckInListID: sel.CheckInListID, Query: query}
	resp := &SearchResponse{}
	if err := s.conn.Invoke(ctx, MethodSearch, in, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp.Results, nil
}

func (s *GRPCClient) CheckInListStatus(ctx context.Context, sel models.Selection) (*models.CheckInListStatus, error) {
	in := &StatusRequest{EventSlug: sel.EventSlug, CheckInListID: sel.CheckInListID}
	resp := &models.CheckInListStatus{}
	if err := s.conn.Invoke(ctx, MethodCheckInListStatus, in, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Questions(ctx context.Context, sel models.Selection, itemID int64) ([]models.Question, error) {
	in := &QuestionsRequest{EventSlug: sel.EventSlug, CheckInListID: sel.CheckInListID, ItemID: itemID}
	resp := &QuestionsResponse{}
	if err := s.conn.Invoke(ctx, MethodQuestions, in, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp.Questions, nil
}

func (s *GRPCClient) UploadFailedCheckIn(ctx context.Context, f models.FailedCheckIn) error {
	if err := s.conn.Invoke(ctx, MethodUploadFailedCheckIn, &FailedCheckInRequest{FailedCheckIn: f}, &FailedCheckInResponse{}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return common.ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrForbidden
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.ResourceExhausted:
		rl := &common.RateLimitError{}
		for _, d := range st.Details() {
			if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
				rl.RetryAfter = ri.GetRetryDelay().AsDuration()
			}
		}
		return rl
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", common.ErrRejected, st.Message())
	case codes.Internal:
		if st.Message() != "" {
			return fmt.Errorf("%w: %s", common.ErrMalformedPayload, st.Message())
		}
		return common.ErrMalformedPayload
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
