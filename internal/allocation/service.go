// Package allocation drives number self-provisioning against the upstream
// allocation API and commits successful allocations to the mapping store.
package allocation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mnitnetwork/otp-relay/internal/mapping"
)

// rangeWildcard completes a bare prefix into the range form the upstream
// API expects, e.g. "88017" -> "88017XXX".
const rangeWildcard = "XXX"

// API is the upstream surface the service and the chat commands need.
// Satisfied by Client.
type API interface {
	AllocateNumber(ctx context.Context, rangeSpec string) (*Allocated, error)
	AllocationInfo(ctx context.Context, q InfoQuery) (string, error)
}

// Store is the mapping commit surface. Put absorbs storage failures, so a
// completed allocation is always reported back to the requester.
type Store interface {
	Put(ctx context.Context, number string, id mapping.SubscriberID)
}

// Service orchestrates one allocation request: complete the range spec,
// call upstream, normalize the returned number, commit the mapping.
type Service struct {
	api    API
	store  Store
	logger *slog.Logger
}

// NewService creates an allocation Service.
func NewService(api API, store Store, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		store:  store,
		logger: logger.With("component", "allocation_service"),
	}
}

// Allocate requests a number for rangePrefix and maps it to subscriber.
// The store is only touched once a usable number came back; upstream and
// parse failures leave it unchanged. Re-allocation of an already-mapped
// number overwrites the owner, last allocation wins.
func (s *Service) Allocate(ctx context.Context, rangePrefix string, subscriber mapping.SubscriberID) (*Allocated, error) {
	rangeSpec := rangePrefix
	if !strings.HasSuffix(rangeSpec, rangeWildcard) {
		rangeSpec += rangeWildcard
	}

	allocated, err := s.api.AllocateNumber(ctx, rangeSpec)
	if err != nil {
		allocationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	normalized := mapping.Normalize(allocated.Number)
	if normalized == "" {
		s.logger.ErrorContext(ctx, "Allocated number contains no digits", "number", allocated.Number)
		allocationsTotal.WithLabelValues("parse_error").Inc()
		return nil, ErrNoNumber
	}

	s.store.Put(ctx, normalized, subscriber)
	s.logger.InfoContext(ctx, "Number mapped to subscriber",
		"number", normalized, "subscriber_id", subscriber, "range", rangeSpec)
	allocationsTotal.WithLabelValues("success").Inc()
	return allocated, nil
}

func outcomeLabel(err error) string {
	if errors.Is(err, ErrNoNumber) {
		return "parse_error"
	}
	return "upstream_error"
}
