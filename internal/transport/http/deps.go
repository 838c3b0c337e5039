// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/seisreview/cct-service/internal/auth"
	"github.com/seisreview/cct-service/internal/gateway"
)

// Dispatcher routes one review request envelope to the matching operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, principal auth.Principal, body []byte) gateway.Response
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
