package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// refreshMargin is how close to expiry a token is refreshed before a
// stream is opened.
const refreshMargin = 30 * time.Second

const userAgent = "cipherbox-cli/1.0"

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.FileVaultClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string

	now func() time.Time
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

func (s *GRPCClient) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *GRPCClient) refresh(ctx context.Context) error {
	_, refreshToken := s.tokens()
	if refreshToken == "" {
		return ErrUnauthorized
	}

	resp, err := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

// expiresSoon reads the token's exp claim without verifying it; the server
// remains the judge of validity.
func (s *GRPCClient) expiresSoon(token string) bool {
	if token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(s.clock().Add(refreshMargin))
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	accessToken, _ := s.tokens()
	err := invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	if rerr := s.refresh(ctx); rerr != nil {
		return err
	}

	// tokens refreshed, retrying with the new access token
	accessToken, _ = s.tokens()
	return invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
}

// streamAccessTokenInterceptor refreshes ahead of time because a stream
// body cannot be replayed after an expired-token rejection.
func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {

	accessToken, _ := s.tokens()
	if s.expiresSoon(accessToken) {
		if err := s.refresh(ctx); err == nil {
			accessToken, _ = s.tokens()
		}
	}
	return streamer(withAccessToken(ctx, accessToken), desc, cc, method, opts...)
}

func NewFileVaultClientService(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {

	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(userAgent),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewFileVaultClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// mapError turns a status back into the sentinel the server mapped.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrInvalidInput, strings.TrimPrefix(st.Message(), common.ErrInvalidInput.Error()+": "))
	case codes.FailedPrecondition:
		return common.ErrInvalidState
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.Unavailable:
		if st.Message() == common.ErrStoreUnavailable.Error() {
			return common.ErrStoreUnavailable
		}
		return ErrUnavailable
	case codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Canceled:
		return context.Canceled
	case codes.Internal:
		if st.Message() == common.ErrPartialPurge.Error() {
			return common.ErrPartialPurge
		}
		return fmt.Errorf("%w: %s", common.ErrorInternal, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (s *GRPCClient) Register(ctx context.Context, userName string, verifier []byte) error {

	req := &api.RegisterRequest{Username: userName, Verifier: verifier}

	_, err := s.client.Register(ctx, req)

	if err != nil {
		return s.mapError(err)
	}

	return nil

}

func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) error {

	req := &api.LoginRequest{Username: userName, Verifier: verifier}

	resp, err := s.client.Login(ctx, req)

	if err != nil {
		return s.mapError(err)
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken)

	return nil

}

func (s *GRPCClient) Logout() {
	s.setTokens("", "")
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil

}

func (s *GRPCClient) ListFiles(ctx context.Context, state string) ([]api.FileInfo, error) {
	resp, err := s.client.ListFiles(ctx, &api.ListFilesRequest{State: state})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Files, nil
}

func (s *GRPCClient) Trash(ctx context.Context, id string) (*api.FileInfo, error) {
	resp, err := s.client.TrashFile(ctx, &api.FileRequest{ID: id})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.File, nil
}

func (s *GRPCClient) Restore(ctx context.Context, id string) (*api.FileInfo, error) {
	resp, err := s.client.RestoreFile(ctx, &api.FileRequest{ID: id})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.File, nil
}

func (s *GRPCClient) Purge(ctx context.Context, id string) error {
	_, err := s.client.PurgeFile(ctx, &api.FileRequest{ID: id})
	return s.mapError(err)
}

func (s *GRPCClient) Duplicates(ctx context.Context) (*api.DuplicatesResponse, error) {
	resp, err := s.client.Duplicates(ctx, &api.DuplicatesRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Stats(ctx context.Context) (*api.StatsResponse, error) {
	resp, err := s.client.Stats(ctx, &api.StatsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) AuditLog(ctx context.Context, req api.AuditLogRequest) (*api.AuditLogResponse, error) {
	resp, err := s.client.AuditLog(ctx, &req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Upload(ctx context.Context, h api.FileHeader, body io.Reader) (*api.FileInfo, error) {
	// Returning before CloseAndRecv cancels the stream.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.client.Upload(metadata.NewOutgoingContext(ctx, h.MD()))
	if err != nil {
		return nil, s.mapError(err)
	}

	buf := make([]byte, api.FrameSize)
	for done := false; !done; {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if err := stream.Send(wrapperspb.Bytes(buf[:n])); err != nil {
				if !errors.Is(err, io.EOF) {
					return nil, s.mapError(err)
				}
				// the server ended the call; CloseAndRecv has its status
				break
			}
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			done = true
		default:
			return nil, rerr
		}
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.File, nil
}

// streamReader exposes download frames as a byte stream.
type streamReader struct {
	recv   func() (*wrapperspb.BytesValue, error)
	mapErr func(error) error
	cancel context.CancelFunc
	buf    []byte
}

func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		frame, err := r.recv()
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, r.mapErr(err)
		}
		r.buf = frame.GetValue()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *streamReader) Close() error {
	r.cancel()
	return nil
}

func (s *GRPCClient) Download(ctx context.Context, id string, view bool) (api.FileHeader, io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := s.client.Download(ctx, &api.DownloadRequest{ID: id, View: view})
	if err != nil {
		cancel()
		return api.FileHeader{}, nil, s.mapError(err)
	}

	md, err := stream.Header()
	if err != nil {
		cancel()
		return api.FileHeader{}, nil, s.mapError(err)
	}

	h, err := api.ParseFileHeader(md)
	if err != nil {
		// A failed call sends no file headers; its status comes with Recv.
		if _, rerr := stream.Recv(); rerr != nil && !errors.Is(rerr, io.EOF) {
			err = s.mapError(rerr)
		}
		cancel()
		return api.FileHeader{}, nil, err
	}

	return h, &streamReader{recv: stream.Recv, mapErr: s.mapError, cancel: cancel}, nil
}
