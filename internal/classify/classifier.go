// Package classify maps raw before/after reaction observations to actions.
// It is pure: no storage, no clock, no side effects.
package classify

import (
	"sort"
	"strings"

	"github.com/hyperengineering/tally/internal/types"
)

// Classification is the balance effect of one observed transition.
type Classification int

const (
	// NoOp means the transition carries no balance effect (reaction swap,
	// or an empty-to-empty delivery that should not occur).
	NoOp Classification = iota
	// Award means the subject earned the first-action award for the scope.
	Award
	// Revoke means the subject removed their last reaction on the scope.
	Revoke
)

// String returns a human-readable classification name.
func (c Classification) String() string {
	switch c {
	case Award:
		return "award"
	case Revoke:
		return "revoke"
	default:
		return "noop"
	}
}

// Action is a classified transition plus the stable key that makes the
// resulting fact unique. DedupKey is empty for NoOp.
type Action struct {
	Classification Classification
	DedupKey       string
}

// Normalize converts a token list into its canonical set form: deterministic
// keys, sorted, duplicates removed. Set equality, not sequence equality,
// governs the "changed" case.
func Normalize(tokens []types.ReactionToken) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tokens))
	keys := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		k := tok.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// equalSets reports whether two normalized key slices are equal.
func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Reaction classifies a before/after reaction transition:
//
//	empty     -> non-empty  Award (dedup key = after set)
//	non-empty -> non-empty  NoOp  (reaction changed, no balance effect)
//	non-empty -> empty      Revoke (dedup key = before set)
//	empty     -> empty      NoOp  (should not occur)
//
// Both inputs are normalized before comparison.
func Reaction(before, after []types.ReactionToken) Action {
	b := Normalize(before)
	a := Normalize(after)

	switch {
	case len(b) == 0 && len(a) > 0:
		return Action{Classification: Award, DedupKey: strings.Join(a, ",")}
	case len(b) > 0 && len(a) == 0:
		return Action{Classification: Revoke, DedupKey: strings.Join(b, ",")}
	case len(b) > 0 && len(a) > 0 && !equalSets(b, a):
		return Action{Classification: NoOp}
	default:
		return Action{Classification: NoOp}
	}
}

// PollAnswer classifies a poll-answer delivery. Any answer is an Award
// scoped to the poll; there is no revoke path for polls.
func PollAnswer(pollID string) Action {
	return Action{Classification: Award, DedupKey: "poll:" + pollID}
}
