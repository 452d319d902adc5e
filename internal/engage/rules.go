package engage

import "github.com/hyperengineering/tally/internal/types"

// RuleSet maps action kinds to signed point magnitudes and records which
// kinds are enabled. The historical bot variants differed only in these two
// tables, so they collapse into configuration here.
type RuleSet struct {
	Points  map[types.ActionKind]int64
	Enabled map[types.ActionKind]bool
}

// DefaultRules returns the standard rule set: first reaction +10, last
// removal -10, poll answer +10, all kinds enabled.
func DefaultRules() RuleSet {
	return RuleSet{
		Points: map[types.ActionKind]int64{
			types.KindReaction:       10,
			types.KindReactionRemove: -10,
			types.KindPollAnswer:     10,
		},
		Enabled: map[types.ActionKind]bool{
			types.KindReaction:       true,
			types.KindReactionRemove: true,
			types.KindPollAnswer:     true,
		},
	}
}

// PointsFor returns the signed magnitude for a kind, 0 if unconfigured.
func (r RuleSet) PointsFor(kind types.ActionKind) int64 {
	return r.Points[kind]
}

// IsEnabled reports whether facts of this kind are recorded at all.
func (r RuleSet) IsEnabled(kind types.ActionKind) bool {
	return r.Enabled[kind]
}
