// Package engage is the application service of the engagement ledger: it
// validates observations, classifies them, consults the once-gate and
// applies facts. It owns no storage and no transport.
package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/hyperengineering/tally/internal/classify"
	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/metrics"
	"github.com/hyperengineering/tally/internal/types"
)

var (
	// ErrInvalidObservation indicates a malformed or unattributable
	// observation (e.g. missing subject id). No storage is touched.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrUnexpectedDuplicate indicates the fact store reported a duplicate
	// after the once-gate granted a fresh claim. That combination cannot
	// happen in a correct flow and is surfaced loudly, never masked.
	ErrUnexpectedDuplicate = errors.New("unexpected duplicate after fresh once-gate claim")
)

// Status reports how an observation was handled.
type Status int

const (
	// StatusApplied means a fact was written and the balance moved.
	StatusApplied Status = iota
	// StatusDuplicate means the identical action was already applied; the
	// balance was correct before this delivery.
	StatusDuplicate
	// StatusNoOp means the transition carries no balance effect.
	StatusNoOp
	// StatusGated means the once-gate already holds a claim for this
	// scope; no second first-action award is granted.
	StatusGated
	// StatusDisabled means the rule set does not record this action kind.
	StatusDisabled
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusDuplicate:
		return "duplicate"
	case StatusNoOp:
		return "noop"
	case StatusGated:
		return "gated"
	default:
		return "disabled"
	}
}

// Result describes the handling of one observation.
type Result struct {
	Status Status
	Kind   types.ActionKind
	Points int64
}

// Service wires the classifier, the once-gate and the ledger together.
// Safe for concurrent use; all shared mutable state lives in storage.
type Service struct {
	ledger ledger.Ledger
	gate   ledger.OnceGate
	rules  RuleSet
	clock  clockwork.Clock
}

// NewService creates a Service. The clock stamps fact creation times and is
// injectable for tests.
func NewService(l ledger.Ledger, gate ledger.OnceGate, rules RuleSet, clock clockwork.Clock) *Service {
	return &Service{
		ledger: l,
		gate:   gate,
		rules:  rules,
		clock:  clock,
	}
}

// HandleReaction processes one before/after reaction observation. Duplicate
// deliveries and gated awards are successful no-ops, never errors.
func (s *Service) HandleReaction(ctx context.Context, obs types.ReactionObservation) (Result, error) {
	if obs.SubjectID == 0 {
		metrics.ObservationsTotal.WithLabelValues("reaction", "invalid").Inc()
		return Result{}, fmt.Errorf("%w: missing subject id", ErrInvalidObservation)
	}

	if err := s.ledger.UpsertUser(ctx, obs.SubjectID, obs.Label); err != nil {
		return Result{}, fmt.Errorf("upsert user: %w", err)
	}

	action := classify.Reaction(obs.Before, obs.After)

	var result Result
	var err error
	switch action.Classification {
	case classify.Award:
		result, err = s.applyAward(ctx, obs.SubjectID, types.KindReaction,
			obs.Scope, obs.Scope.GateKey(), action.DedupKey)
	case classify.Revoke:
		result, err = s.applyRevoke(ctx, obs.SubjectID, obs.Scope, action.DedupKey)
	default:
		result = Result{Status: StatusNoOp}
	}
	if err != nil {
		return Result{}, err
	}

	metrics.ObservationsTotal.WithLabelValues("reaction", result.Status.String()).Inc()
	return result, nil
}

// HandlePollAnswer processes one poll-answer observation. A subject earns
// the poll award at most once ever; there is no revoke path for polls.
func (s *Service) HandlePollAnswer(ctx context.Context, obs types.PollObservation) (Result, error) {
	if obs.SubjectID == 0 {
		metrics.ObservationsTotal.WithLabelValues("poll", "invalid").Inc()
		return Result{}, fmt.Errorf("%w: missing subject id", ErrInvalidObservation)
	}
	if obs.PollID == "" {
		metrics.ObservationsTotal.WithLabelValues("poll", "invalid").Inc()
		return Result{}, fmt.Errorf("%w: missing poll id", ErrInvalidObservation)
	}

	if err := s.ledger.UpsertUser(ctx, obs.SubjectID, obs.Label); err != nil {
		return Result{}, fmt.Errorf("upsert user: %w", err)
	}

	action := classify.PollAnswer(obs.PollID)
	result, err := s.applyAward(ctx, obs.SubjectID, types.KindPollAnswer,
		types.Scope{}, types.PollGateKey(obs.PollID), action.DedupKey)
	if err != nil {
		return Result{}, err
	}

	metrics.ObservationsTotal.WithLabelValues("poll", result.Status.String()).Inc()
	return result, nil
}

// applyAward grants a first-action award behind the once-gate. The claim
// and the fact commit together, so a storage failure leaves no claim
// behind and a redelivery of the observation can still earn the award. The
// gate is the business-rule layer; the fact unique tuple below it is the
// raw delivery-duplicate backstop.
func (s *Service) applyAward(ctx context.Context, subjectID int64, kind types.ActionKind, scope types.Scope, gateKey, dedupKey string) (Result, error) {
	if !s.rules.IsEnabled(kind) {
		return Result{Status: StatusDisabled, Kind: kind}, nil
	}

	points := s.rules.PointsFor(kind)
	outcome, err := s.gate.ApplyClaimed(ctx, gateKey, types.Fact{
		SubjectID: subjectID,
		Kind:      kind,
		Magnitude: points,
		Scope:     scope,
		DedupKey:  dedupKey,
		CreatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply award: %w", err)
	}

	switch outcome {
	case ledger.Gated:
		metrics.GateRefusalsTotal.Inc()
		return Result{Status: StatusGated, Kind: kind}, nil
	case ledger.Duplicate:
		// The claim was fresh, yet the ledger already holds the fact. A
		// logic defect, not a redelivery.
		slog.Error("duplicate fact behind fresh once-gate claim",
			"subject_id", subjectID, "kind", kind, "gate_key", gateKey)
		return Result{}, ErrUnexpectedDuplicate
	}

	metrics.FactsAppliedTotal.WithLabelValues(string(kind)).Inc()
	slog.Debug("fact applied",
		"subject_id", subjectID, "kind", kind, "points", points)
	return Result{Status: StatusApplied, Kind: kind, Points: points}, nil
}

// applyRevoke records a last-reaction removal. Revokes are not gated:
// redelivery is absorbed by the fact unique tuple instead.
func (s *Service) applyRevoke(ctx context.Context, subjectID int64, scope types.Scope, dedupKey string) (Result, error) {
	kind := types.KindReactionRemove
	if !s.rules.IsEnabled(kind) {
		return Result{Status: StatusDisabled, Kind: kind}, nil
	}

	points := s.rules.PointsFor(kind)
	outcome, err := s.ledger.Apply(ctx, types.Fact{
		SubjectID: subjectID,
		Kind:      kind,
		Magnitude: points,
		Scope:     scope,
		DedupKey:  dedupKey,
		CreatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply revoke: %w", err)
	}
	if outcome == ledger.Duplicate {
		metrics.DuplicateFactsTotal.Inc()
		return Result{Status: StatusDuplicate, Kind: kind}, nil
	}

	metrics.FactsAppliedTotal.WithLabelValues(string(kind)).Inc()
	slog.Debug("fact applied",
		"subject_id", subjectID, "kind", kind, "points", points)
	return Result{Status: StatusApplied, Kind: kind, Points: points}, nil
}

// Balance returns the subject's current balance.
func (s *Service) Balance(ctx context.Context, subjectID int64) (int64, error) {
	return s.ledger.Balance(ctx, subjectID)
}

// TopBalances returns the all-time leaderboard, top limit rows.
func (s *Service) TopBalances(ctx context.Context, limit int) ([]types.BalanceEntry, error) {
	return s.ledger.TopBalances(ctx, limit)
}
