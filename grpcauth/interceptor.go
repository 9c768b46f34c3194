package grpcauth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/policy"
)

type principalContextKey struct{}

// PrincipalFromContext returns the Principal stored by the interceptors.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(identity.Principal)
	return p, ok
}

type options struct {
	public       map[string]struct{}
	requirements map[string]policy.Requirement
}

// Option configures the interceptors.
type Option func(*options)

// WithPublicMethods lists full method names ("/pkg.Service/Method") that
// skip authentication.
func WithPublicMethods(methods ...string) Option {
	return func(o *options) {
		for _, m := range methods {
			o.public[m] = struct{}{}
		}
	}
}

// WithRequirement attaches a policy requirement to one full method name.
func WithRequirement(method string, req policy.Requirement) Option {
	return func(o *options) {
		if req.Resource == "" {
			req.Resource = method
		}
		o.requirements[method] = req
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		public:       make(map[string]struct{}),
		requirements: make(map[string]policy.Requirement),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UnaryServerInterceptor authenticates every unary call not listed as public.
func UnaryServerInterceptor(engine *portalauth.Engine, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := o.authorize(ctx, engine, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor authenticates every stream not listed as public.
func StreamServerInterceptor(engine *portalauth.Engine, opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := o.authorize(ss.Context(), engine, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func (o *options) authorize(ctx context.Context, engine *portalauth.Engine, method string) (context.Context, error) {
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		ctx = portalauth.WithClientIP(ctx, hostOnly(pr.Addr.String()))
	}
	if _, ok := o.public[method]; ok {
		return ctx, nil
	}

	token := bearerFromMetadata(ctx)
	if token == "" {
		engine.RecordDenial(ctx, method, portalauth.ErrAuthRequired)
		return ctx, toStatus(portalauth.ErrAuthRequired)
	}
	p, err := engine.Verify(ctx, token)
	if err != nil {
		return ctx, toStatus(err)
	}

	if req, ok := o.requirements[method]; ok {
		if err := engine.Authorize(ctx, &p, req); err != nil {
			return ctx, toStatus(err)
		}
	}
	return context.WithValue(ctx, principalContextKey{}, p), nil
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		const bearer = "bearer "
		if len(v) > len(bearer) && strings.EqualFold(v[:len(bearer)], bearer) {
			return strings.TrimSpace(v[len(bearer):])
		}
	}
	return ""
}

// toStatus maps engine errors onto gRPC status codes. The message carries the
// stable portalauth code followed by its generic text.
func toStatus(err error) error {
	code := portalauth.CodeOf(err)
	var c codes.Code
	switch code {
	case portalauth.CodeAuthRequired, portalauth.CodeInvalidToken:
		c = codes.Unauthenticated
	case portalauth.CodeInsufficientPermissions, portalauth.CodeCompanyAccessDenied:
		c = codes.PermissionDenied
	case portalauth.CodeRateLimited:
		c = codes.ResourceExhausted
	default:
		c = codes.Internal
	}
	return status.Error(c, string(code)+": "+portalauth.MessageFor(code))
}

func hostOnly(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
