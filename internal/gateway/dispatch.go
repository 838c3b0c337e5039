// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/seisreview/cct-service/internal/auth"
	"github.com/seisreview/cct-service/internal/domain"
	"github.com/seisreview/cct-service/internal/metrics"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Request is the JSON envelope every review request arrives in.
type Request struct {
	RequestType     string `json:"request_type"`
	Schema          string `json:"schema,omitempty"`
	EventIdentifier string `json:"eventIdentifier,omitempty"`
}

// Response echoes the request type and reports the outcome. Exactly one of
// the data fields is populated, depending on the request.
type Response struct {
	Status           string          `json:"status"`
	Request          string          `json:"request,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	AvailableSchemas []string        `json:"availableSchemas,omitempty"`
	Hash             string          `json:"hash,omitempty"`
	EventIdentifier  string          `json:"eventIdentifier,omitempty"`
	Events           json.RawMessage `json:"events,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// Dispatch routes one parsed-or-not request body to the matching gateway
// operation and always produces a well-formed response. Internal failures
// are logged with a correlation id and reported with a generic reason so
// database details never reach the caller.
func (g *Gateway) Dispatch(ctx context.Context, principal auth.Principal, body []byte) Response {
	correlationID := uuid.NewString()

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		g.logger.Warn("unparseable request",
			"correlation_id", correlationID,
			"user", principal.User,
			"error", err,
		)
		return failure("", "could not parse JSON request")
	}
	if request.RequestType == "" {
		return failure("", "request_type not set in JSON request")
	}

	g.logger.Info("dispatching request",
		"correlation_id", correlationID,
		"request_type", request.RequestType,
		"schema", request.Schema,
		"user", principal.User,
	)

	response := g.dispatch(ctx, principal, request, correlationID)
	metrics.IncRequestDispatched(request.RequestType, response.Status)
	return response
}

func (g *Gateway) dispatch(ctx context.Context, principal auth.Principal, request Request, correlationID string) Response {
	switch request.RequestType {
	case "availableSchemas":
		return Response{
			Status:           statusSuccess,
			Request:          request.RequestType,
			AvailableSchemas: g.AvailableSchemas(),
		}

	case "hash":
		if request.Schema == "" {
			return failure(request.RequestType, "schema not set in JSON request")
		}
		fingerprint, err := g.Fingerprint(request.Schema)
		if err != nil {
			return g.failureFor(request, err, correlationID)
		}
		return Response{
			Status:  statusSuccess,
			Request: request.RequestType,
			Hash:    strconv.FormatUint(fingerprint, 10),
		}

	case "cctData":
		if request.Schema == "" {
			return failure(request.RequestType, "schema not set in JSON request")
		}
		events, err := g.Snapshot(request.Schema)
		if err != nil {
			return g.failureFor(request, err, correlationID)
		}
		return Response{
			Status:  statusSuccess,
			Request: request.RequestType,
			Events:  events,
		}

	case "eventData":
		if response, ok := requireEvent(request); !ok {
			return response
		}
		data, err := g.Detail(request.Schema, request.EventIdentifier)
		if err != nil {
			return g.failureFor(request, err, correlationID)
		}
		return Response{
			Status:          statusSuccess,
			Request:         request.RequestType,
			EventIdentifier: request.EventIdentifier,
			Data:            data,
		}

	case "accept":
		if response, ok := requireEvent(request); !ok {
			return response
		}
		if !principal.CanWrite() {
			return failure(request.RequestType, "insufficient permissions to accept")
		}
		if err := g.Accept(ctx, principal.User, request.Schema, request.EventIdentifier); err != nil {
			return g.failureFor(request, err, correlationID)
		}
		return Response{
			Status:          statusSuccess,
			Request:         request.RequestType,
			EventIdentifier: request.EventIdentifier,
		}

	case "reject":
		if response, ok := requireEvent(request); !ok {
			return response
		}
		if !principal.CanWrite() {
			return failure(request.RequestType, "insufficient permissions to reject")
		}
		if err := g.Reject(ctx, principal.User, request.Schema, request.EventIdentifier); err != nil {
			return g.failureFor(request, err, correlationID)
		}
		return Response{
			Status:          statusSuccess,
			Request:         request.RequestType,
			EventIdentifier: request.EventIdentifier,
		}

	default:
		return failure(request.RequestType,
			fmt.Sprintf("unhandled request type: %s", request.RequestType))
	}
}

// failureFor maps an operation error to a caller-facing reason. Known domain
// conditions get a specific message; everything else is generic and the
// detail stays in the log.
func (g *Gateway) failureFor(request Request, err error, correlationID string) Response {
	var validation *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrSchemaNotFound):
		return failure(request.RequestType, "invalid schema: "+request.Schema)
	case errors.Is(err, domain.ErrEventNotFound):
		return failure(request.RequestType, request.EventIdentifier+" does not exist")
	case errors.As(err, &validation):
		return failure(request.RequestType, validation.Error())
	default:
		g.logger.Error("request failed",
			"correlation_id", correlationID,
			"request_type", request.RequestType,
			"schema", request.Schema,
			"event_id", request.EventIdentifier,
			"error", err,
		)
		return failure(request.RequestType, "internal error")
	}
}

func requireEvent(request Request) (Response, bool) {
	if request.Schema == "" {
		return failure(request.RequestType, "schema not set in JSON request"), false
	}
	if request.EventIdentifier == "" {
		return failure(request.RequestType, "eventIdentifier not set in JSON request"), false
	}
	return Response{}, true
}

func failure(requestType, reason string) Response {
	return Response{
		Status:  statusFailure,
		Request: requestType,
		Reason:  reason,
	}
}
