// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/seisreview/cct-service/internal/domain"
)

// StaticAuthorizer resolves bearer tokens from a fixed table, for
// deployments that provision tokens out of band.
type StaticAuthorizer struct {
	tokens map[string]Principal
}

func NewStaticAuthorizer(tokens map[string]Principal) *StaticAuthorizer {
	copied := make(map[string]Principal, len(tokens))
	for token, principal := range tokens {
		copied[token] = principal
	}
	return &StaticAuthorizer{tokens: copied}
}

func (a *StaticAuthorizer) Authorize(_ context.Context, token string) (Principal, error) {
	principal, ok := a.tokens[token]
	if !ok || principal.Permission == PermissionNone {
		return Principal{}, domain.ErrUnauthorized
	}
	return principal, nil
}
