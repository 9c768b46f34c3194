// Package grpcauth provides gRPC server interceptors that verify bearer
// access tokens from request metadata with portalauth.Engine and evaluate
// per-method policy requirements.
package grpcauth
