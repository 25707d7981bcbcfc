package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/server/auth"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the authenticated caller set by the access
// token interceptors.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func firstMD(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// originOf reads the caller's address and user agent. A forwarding proxy's
// x-forwarded-for wins over the peer address.
func originOf(ctx context.Context) models.Origin {
	var o models.Origin
	md, _ := metadata.FromIncomingContext(ctx)

	if fwd := firstMD(md, "x-forwarded-for"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		o.IP = strings.TrimSpace(ip)
	} else if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		o.IP = p.Addr.String()
		if host, _, err := net.SplitHostPort(o.IP); err == nil {
			o.IP = host
		}
	}
	o.UserAgent = firstMD(md, "user-agent")
	return o
}

func (s *GRPCServer) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	ctx = services.WithOrigin(ctx, originOf(ctx))

	if api.IsPublic(fullMethod) {
		return ctx, nil
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		accessToken = firstMD(md, common.AccessTokenHeaderName)
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return context.WithValue(ctx, userIDKey, userID), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

func methodName(fullMethod string) string {
	return fullMethod[strings.LastIndex(fullMethod, "/")+1:]
}

func (s *GRPCServer) observe(ctx context.Context, fullMethod string, start time.Time, err error) {
	code := status.Code(err)
	d := time.Since(start)
	s.metrics.RecordGRPC(methodName(fullMethod), code.String(), d)
	s.logger.Debug(ctx, "rpc", "method", fullMethod, "code", code.String(), "duration", d)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.observe(ctx, info.FullMethod, start, err)
	return resp, err
}

func (s *GRPCServer) streamMetricsInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.observe(ss.Context(), info.FullMethod, start, err)
	return err
}
