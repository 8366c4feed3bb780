package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/common/observability"
	"clinic-workers/internal/models"
)

// Store is a durable per-scope counter. Increment must be a single atomic
// read-modify-write in the backing store; callers never read then write.
type Store interface {
	Increment(ctx context.Context, scope string) (int64, error)
	Current(ctx context.Context, scope string) (int64, error)
	Set(ctx context.Context, scope string, value int64) error
}

// MaxObserver reports the highest number already embedded in domain data for a scope.
type MaxObserver interface {
	MaxObserved(ctx context.Context, scope string) (int64, error)
}

type Allocator struct {
	store    Store
	observer MaxObserver
	obs      *observability.Observability
	logger   logger.Logger
}

type Option func(*Allocator)

func WithObservability(o *observability.Observability) Option {
	return func(a *Allocator) { a.obs = o }
}

// NewAllocator builds an allocator. observer may be nil, which disables Inspect's
// domain scan and Resync.
func NewAllocator(store Store, observer MaxObserver, log logger.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		store:    store,
		observer: observer,
		logger:   log.WithFields(map[string]interface{}{"component": "sequence"}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate issues the next number for scope. The first allocation of a scope returns 1.
func (a *Allocator) Allocate(ctx context.Context, scope string) (int64, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}

	n, err := a.store.Increment(ctx, scope)
	if err != nil {
		metrics.SequenceAllocations.WithLabelValues(kindLabel(scope), "error").Inc()
		a.logger.Error("sequence allocation failed", map[string]interface{}{"scope": scope, "error": err})
		return 0, errors.NewSequenceAllocationFailedError(scope, err)
	}

	metrics.SequenceAllocations.WithLabelValues(kindLabel(scope), "ok").Inc()
	a.obs.RecordAllocation(ctx, kindLabel(scope))
	return n, nil
}

// AllocateCode allocates within kind's scope for owner and formats the result.
func (a *Allocator) AllocateCode(ctx context.Context, kind Kind, owner string) (string, int64, error) {
	scope, err := kind.Scope(owner)
	if err != nil {
		return "", 0, errors.NewValidationError(err.Error())
	}
	n, err := a.Allocate(ctx, scope)
	if err != nil {
		return "", 0, err
	}
	return kind.Format(n), n, nil
}

// Peek returns the last issued number without incrementing. Unknown scopes report 0.
func (a *Allocator) Peek(ctx context.Context, scope string) (int64, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}
	n, err := a.store.Current(ctx, scope)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("sequence.peek", err)
	}
	return n, nil
}

func (a *Allocator) Inspect(ctx context.Context, scope string) (*models.CounterInspection, error) {
	stored, err := a.Peek(ctx, scope)
	if err != nil {
		return nil, err
	}

	var maxObserved int64
	if a.observer != nil {
		maxObserved, err = a.observer.MaxObserved(ctx, scope)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("sequence.max_observed", err)
		}
	}

	return &models.CounterInspection{
		Scope:                   scope,
		StoredValue:             stored,
		MaxObservedInDomainData: maxObserved,
		NextCodeWouldBe:         formatForScope(scope, stored+1),
	}, nil
}

// Resync force-sets scope's counter to the highest number observed in domain data.
// It can lower the counter, so it is only ever run on an explicit operator request.
func (a *Allocator) Resync(ctx context.Context, scope string) (*models.ResyncResult, error) {
	if a.observer == nil {
		return nil, errors.NewBusinessRuleError("Resync unavailable", "no domain data observer configured")
	}

	inspection, err := a.Inspect(ctx, scope)
	if err != nil {
		return nil, err
	}

	target := inspection.MaxObservedInDomainData
	if target < 0 {
		target = 0
	}
	if err := a.store.Set(ctx, scope, target); err != nil {
		return nil, errors.NewQueryExecutionFailedError("sequence.resync", err)
	}

	a.logger.Warn("sequence counter resynced", map[string]interface{}{
		"scope":    scope,
		"oldValue": inspection.StoredValue,
		"newValue": target,
	})

	return &models.ResyncResult{
		Scope:    scope,
		OldValue: inspection.StoredValue,
		NewValue: target,
		NextCode: formatForScope(scope, target+1),
	}, nil
}

func validateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return errors.NewValidationError("scope must not be empty")
	}
	return nil
}

func kindLabel(scope string) string {
	if k, _, ok := ParseScope(scope); ok {
		return k.Name
	}
	return "custom"
}

func formatForScope(scope string, n int64) string {
	if k, _, ok := ParseScope(scope); ok {
		return k.Format(n)
	}
	return strconv.FormatInt(n, 10)
}

// ScopeFor is a convenience for callers holding a kind name rather than a Kind.
func ScopeFor(kindName, owner string) (Kind, string, error) {
	k, ok := LookupKind(kindName)
	if !ok {
		return Kind{}, "", errors.NewUnknownCodeKindError(kindName)
	}
	scope, err := k.Scope(owner)
	if err != nil {
		return Kind{}, "", errors.NewValidationError(fmt.Sprintf("%v", err))
	}
	return k, scope, nil
}
