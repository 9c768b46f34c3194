package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/security"
)

// DefaultMaxBodyBytes bounds request bodies read by Screen.
const DefaultMaxBodyBytes = 1 << 20

// RequestIDHeader carries the correlation id. Screen generates one when absent.
const RequestIDHeader = "X-Request-Id"

type bodyContextKey struct{}

// BodyFromContext returns the sanitized JSON body stored by Screen.
func BodyFromContext(ctx context.Context) (map[string]any, bool) {
	b, ok := ctx.Value(bodyContextKey{}).(map[string]any)
	return b, ok
}

// ScreenOptions configures one route's pass through the security pipeline.
type ScreenOptions struct {
	// Class selects the rate-limit ceiling.
	Class security.RouteClass
	// Endpoint selects the validation schema; empty skips validation.
	Endpoint string
	// Params lists extra path wildcards to sanitize. Wildcards in the matched
	// http.ServeMux pattern are always included.
	Params []string
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Screen runs the request through Engine.Screen. The sanitized body replaces
// r.Body so handlers decode the cleaned values, and is also available through
// BodyFromContext. Sanitized query and path values are written back to r, so
// r.URL.Query and r.PathValue downstream return the cleaned values. A
// repeated query parameter collapses to its first value.
func Screen(engine *portalauth.Engine, opts ScreenOptions) func(http.Handler) http.Handler {
	if opts.Class == "" {
		opts.Class = security.RouteGeneral
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(RequestIDHeader) == "" {
				r.Header.Set(RequestIDHeader, uuid.NewString())
			}
			w.Header().Set(RequestIDHeader, r.Header.Get(RequestIDHeader))
			ctx := requestContext(r)

			body, err := readJSONBody(w, r, opts.MaxBodyBytes)
			if err != nil {
				WriteError(w, &security.Failure{
					Code:    security.CodeValidationError,
					Message: "request validation failed",
					Fields:  []security.FieldViolation{{Field: "body", Rule: "type", Message: "malformed request body"}},
				})
				return
			}

			req := &security.Request{
				ClientAddr: ClientIP(r),
				Class:      opts.Class,
				Endpoint:   opts.Endpoint,
				Body:       body,
				Query:      flattenQuery(r),
				Params:     pathParams(r, opts.Params),
			}
			if err := engine.Screen(ctx, req); err != nil {
				WriteError(w, err)
				return
			}

			if req.Query != nil {
				r.URL.RawQuery = encodeQuery(req.Query)
			}
			for name, v := range req.Params {
				r.SetPathValue(name, v)
			}

			if body != nil {
				raw, err := json.Marshal(body)
				if err != nil {
					WriteError(w, err)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
				ctx = context.WithValue(ctx, bodyContextKey{}, body)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. Deployments behind a proxy
// should rewrite RemoteAddr before this middleware runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if portalauth.ClientIPFromContext(ctx) == "" {
		ctx = portalauth.WithClientIP(ctx, ClientIP(r))
	}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		ctx = portalauth.WithRequestID(ctx, id)
	}
	return ctx
}

func readJSONBody(w http.ResponseWriter, r *http.Request, limit int64) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	if len(bytes.TrimSpace(raw)) == 0 {
		r.Body = http.NoBody
		return nil, nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return nil, errors.New("unsupported content type")
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func flattenQuery(r *http.Request) map[string]string {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func encodeQuery(q map[string]string) string {
	values := make(url.Values, len(q))
	for k, v := range q {
		values.Set(k, v)
	}
	return values.Encode()
}

func pathParams(r *http.Request, names []string) map[string]string {
	names = append(patternWildcards(r.Pattern), names...)
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		if v := r.PathValue(n); v != "" {
			out[n] = v
		}
	}
	return out
}

// patternWildcards returns the wildcard names in a ServeMux pattern such as
// "GET /companies/{company}/files/{path...}".
func patternWildcards(pattern string) []string {
	var names []string
	for {
		open := strings.IndexByte(pattern, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(pattern[open:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[open+1:open+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[open+end+1:]
	}
}
