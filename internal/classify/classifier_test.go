package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperengineering/tally/internal/types"
)

func emoji(s string) types.ReactionToken {
	return types.ReactionToken{Type: types.TokenEmoji, Emoji: s}
}

func custom(id string) types.ReactionToken {
	return types.ReactionToken{Type: types.TokenCustomEmoji, CustomEmojiID: id}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		tokens []types.ReactionToken
		want   []string
	}{
		{
			name:   "empty",
			tokens: nil,
			want:   nil,
		},
		{
			name:   "sorted deterministically",
			tokens: []types.ReactionToken{emoji("👍"), custom("123"), emoji("❤️")},
			want:   []string{"custom:123", "emoji:❤️", "emoji:👍"},
		},
		{
			name:   "duplicates removed",
			tokens: []types.ReactionToken{emoji("👍"), emoji("👍")},
			want:   []string{"emoji:👍"},
		},
		{
			name:   "order independent",
			tokens: []types.ReactionToken{emoji("🔥"), emoji("👍")},
			want:   []string{"emoji:🔥", "emoji:👍"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.tokens))
		})
	}
}

func TestReaction_DecisionTable(t *testing.T) {
	tests := []struct {
		name   string
		before []types.ReactionToken
		after  []types.ReactionToken
		want   Classification
	}{
		{"first reaction awards", nil, []types.ReactionToken{emoji("👍")}, Award},
		{"last removal revokes", []types.ReactionToken{emoji("❤️")}, nil, Revoke},
		{"swap is a no-op", []types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("❤️")}, NoOp},
		{"added second reaction is a no-op", []types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("👍"), emoji("🔥")}, NoOp},
		{"empty to empty is a no-op", nil, nil, NoOp},
		{"identical sets are a no-op", []types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("👍")}, NoOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reaction(tt.before, tt.after)
			assert.Equal(t, tt.want, got.Classification)
		})
	}
}

func TestReaction_SetEqualityIgnoresOrder(t *testing.T) {
	before := []types.ReactionToken{emoji("👍"), emoji("❤️")}
	after := []types.ReactionToken{emoji("❤️"), emoji("👍")}

	got := Reaction(before, after)
	assert.Equal(t, NoOp, got.Classification, "reordered identical sets must not classify as a change")
}

func TestReaction_DedupKeys(t *testing.T) {
	award := Reaction(nil, []types.ReactionToken{emoji("👍"), custom("42")})
	assert.Equal(t, "custom:42,emoji:👍", award.DedupKey, "award key captures the after set")

	revoke := Reaction([]types.ReactionToken{emoji("❤️")}, nil)
	assert.Equal(t, "emoji:❤️", revoke.DedupKey, "revoke key captures the before set")

	noop := Reaction([]types.ReactionToken{emoji("👍")}, []types.ReactionToken{emoji("❤️")})
	assert.Empty(t, noop.DedupKey)
}

func TestPollAnswer(t *testing.T) {
	got := PollAnswer("poll-abc")
	assert.Equal(t, Award, got.Classification)
	assert.Equal(t, "poll:poll-abc", got.DedupKey)
}

func TestClassification_String(t *testing.T) {
	assert.Equal(t, "award", Award.String())
	assert.Equal(t, "revoke", Revoke.String())
	assert.Equal(t, "noop", NoOp.String())
}
