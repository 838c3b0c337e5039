// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated principal across request handling.
// Verdicts come from an Authorizer supplied by the transport; nothing here
// talks to a directory service.
package auth

import "context"

// Permission is the coarse access level granted to a principal.
type Permission int

const (
	// PermissionNone denies every request.
	PermissionNone Permission = iota
	// PermissionReadOnly allows data queries but no review decisions.
	PermissionReadOnly
	// PermissionReadWrite allows queries and review decisions.
	PermissionReadWrite
)

func (p Permission) String() string {
	switch p {
	case PermissionReadOnly:
		return "read-only"
	case PermissionReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// Principal is an authorizer verdict: who is acting and with what access.
type Principal struct {
	User       string
	Permission Permission
}

// CanWrite reports whether the principal may make review decisions.
func (p Principal) CanWrite() bool {
	return p.Permission == PermissionReadWrite
}

// Authorizer resolves a bearer token to a principal. Implementations decide
// the token scheme; a failed resolution returns an error and no principal.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (Principal, error)
}

type principalContextKey struct{}

var ctxPrincipalKey principalContextKey

// WithPrincipal stores the authorizer verdict on the request context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, principal)
}

// PrincipalFromContext reads the authorizer verdict from the request context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(ctxPrincipalKey)
	principal, ok := v.(Principal)
	if !ok || principal.User == "" {
		return Principal{}, false
	}
	return principal, true
}
