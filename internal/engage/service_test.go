package engage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/types"
)

func newTestService(t *testing.T) (*Service, *ledger.SQLiteStore) {
	t.Helper()
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC))
	return NewService(store, store, DefaultRules(), clock), store
}

func emoji(s string) types.ReactionToken {
	return types.ReactionToken{Type: types.TokenEmoji, Emoji: s}
}

func reactionObs(subject int64, scope types.Scope, before, after []types.ReactionToken) types.ReactionObservation {
	return types.ReactionObservation{
		SubjectID: subject,
		Label:     "tester",
		Scope:     scope,
		Before:    before,
		After:     after,
	}
}

func TestService_RejectsMissingSubject(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.HandleReaction(context.Background(),
		reactionObs(0, types.Scope{ChatID: 1, MessageID: 1}, nil, []types.ReactionToken{emoji("👍")}))
	assert.ErrorIs(t, err, ErrInvalidObservation)

	_, err = svc.HandlePollAnswer(context.Background(), types.PollObservation{SubjectID: 0, PollID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidObservation)

	_, err = svc.HandlePollAnswer(context.Background(), types.PollObservation{SubjectID: 1})
	assert.ErrorIs(t, err, ErrInvalidObservation)
}

func TestService_FirstReactionAwards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}

	result, err := svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(10), result.Points)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestService_DuplicateDeliveryIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}
	obs := reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")})

	_, err := svc.HandleReaction(ctx, obs)
	require.NoError(t, err)

	// The identical observation delivered again, several times.
	for i := 0; i < 3; i++ {
		result, err := svc.HandleReaction(ctx, obs)
		require.NoError(t, err)
		assert.Equal(t, StatusGated, result.Status)
	}

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "award must count exactly once")
}

func TestService_ReactionSwapIsNoOp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}

	_, err := svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)

	result, err := svc.HandleReaction(ctx,
		reactionObs(1, scope, []types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("❤️")}))
	require.NoError(t, err)
	assert.Equal(t, StatusNoOp, result.Status)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FactCount, "a swap must not write a fact")
}

func TestService_RemovingLastReactionRevokes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}

	_, err := svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)
	_, err = svc.HandleReaction(ctx,
		reactionObs(1, scope, []types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("❤️")}))
	require.NoError(t, err)

	result, err := svc.HandleReaction(ctx,
		reactionObs(1, scope, []types.ReactionToken{emoji("❤️")}, nil))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(-10), result.Points)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestService_AwardRevokeAwardCannotBeFarmed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}

	// Award, revoke, then react again on the same post.
	_, err := svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)
	_, err = svc.HandleReaction(ctx, reactionObs(1, scope, []types.ReactionToken{emoji("👍")}, nil))
	require.NoError(t, err)

	// Distinct emoji produces a distinct dedup key; only the once-gate
	// stands between this and a second award.
	result, err := svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("🔥")}))
	require.NoError(t, err)
	assert.Equal(t, StatusGated, result.Status)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "second first-reaction award must not be granted")
}

func TestService_PollAnswerAwardsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	obs := types.PollObservation{SubjectID: 1, Label: "tester", PollID: "poll-1"}

	result, err := svc.HandlePollAnswer(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, types.KindPollAnswer, result.Kind)

	result, err = svc.HandlePollAnswer(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, StatusGated, result.Status)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestService_DisabledKindRecordsNothing(t *testing.T) {
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rules := DefaultRules()
	rules.Enabled[types.KindPollAnswer] = false
	svc := NewService(store, store, rules, clockwork.NewFakeClock())

	result, err := svc.HandlePollAnswer(context.Background(),
		types.PollObservation{SubjectID: 1, PollID: "poll-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, result.Status)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.FactCount)
}

// openGate grants every claim, bypassing the farming layer: facts go
// straight to the wrapped ledger.
type openGate struct {
	ledger ledger.Ledger
}

func (g openGate) ApplyClaimed(ctx context.Context, _ string, fact types.Fact) (ledger.Outcome, error) {
	return g.ledger.Apply(ctx, fact)
}

func TestService_DuplicateBehindFreshClaimIsFatal(t *testing.T) {
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, openGate{ledger: store}, DefaultRules(), clockwork.NewFakeClock())
	ctx := context.Background()
	obs := reactionObs(1, types.Scope{ChatID: 1, MessageID: 1}, nil, []types.ReactionToken{emoji("👍")})

	_, err = svc.HandleReaction(ctx, obs)
	require.NoError(t, err)

	// With the gate wide open, redelivery reaches the fact unique tuple.
	// The service must treat that combination as a logic defect.
	_, err = svc.HandleReaction(ctx, obs)
	assert.ErrorIs(t, err, ErrUnexpectedDuplicate)
}

// flakyGate fails its first ApplyClaimed calls with a transient storage
// error and delegates afterwards.
type flakyGate struct {
	ledger.OnceGate
	failures int
}

func (g *flakyGate) ApplyClaimed(ctx context.Context, key string, fact types.Fact) (ledger.Outcome, error) {
	if g.failures > 0 {
		g.failures--
		return ledger.Gated, fmt.Errorf("apply claimed: %w", ledger.ErrStorageUnavailable)
	}
	return g.OnceGate.ApplyClaimed(ctx, key, fact)
}

// flakyLedger fails its first Apply calls with a transient storage error
// and delegates afterwards.
type flakyLedger struct {
	ledger.Ledger
	failures int
}

func (l *flakyLedger) Apply(ctx context.Context, fact types.Fact) (ledger.Outcome, error) {
	if l.failures > 0 {
		l.failures--
		return ledger.Duplicate, fmt.Errorf("apply: %w", ledger.ErrStorageUnavailable)
	}
	return l.Ledger.Apply(ctx, fact)
}

func TestService_AwardSurvivesTransientStorageFailure(t *testing.T) {
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gate := &flakyGate{OnceGate: store, failures: 1}
	svc := NewService(store, gate, DefaultRules(), clockwork.NewFakeClock())
	ctx := context.Background()
	obs := reactionObs(1, types.Scope{ChatID: 1, MessageID: 100}, nil, []types.ReactionToken{emoji("👍")})

	// The first delivery dies in storage. The error propagates and no
	// claim may survive it.
	_, err = svc.HandleReaction(ctx, obs)
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "a failed award must leave nothing behind")

	// Redelivery of the identical observation earns the award.
	result, err := svc.HandleReaction(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)

	// And exactly once.
	result, err = svc.HandleReaction(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, StatusGated, result.Status)

	balance, err = svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestService_RevokeSurvivesTransientStorageFailure(t *testing.T) {
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	led := &flakyLedger{Ledger: store, failures: 1}
	svc := NewService(led, store, DefaultRules(), clockwork.NewFakeClock())
	ctx := context.Background()
	scope := types.Scope{ChatID: 1, MessageID: 100}

	_, err = svc.HandleReaction(ctx, reactionObs(1, scope, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)

	revoke := reactionObs(1, scope, []types.ReactionToken{emoji("👍")}, nil)
	_, err = svc.HandleReaction(ctx, revoke)
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "a failed revoke must not move the balance")

	result, err := svc.HandleReaction(ctx, revoke)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(-10), result.Points)

	// Redelivered once more, the fact unique tuple absorbs it.
	result, err = svc.HandleReaction(ctx, revoke)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, result.Status)

	balance, err = svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestService_FactTimestampComesFromClock(t *testing.T) {
	store, err := ledger.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	at := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, store, DefaultRules(), clockwork.NewFakeClockAt(at))

	_, err = svc.HandleReaction(context.Background(),
		reactionObs(1, types.Scope{ChatID: 1, MessageID: 1}, nil, []types.ReactionToken{emoji("👍")}))
	require.NoError(t, err)

	entries, err := store.WindowTotals(context.Background(), at, at, 15)
	require.NoError(t, err)
	require.Len(t, entries, 1, "fact must be stamped with the injected clock time")
}
