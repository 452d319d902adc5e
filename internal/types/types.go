package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind classifies what a fact rewards or penalizes.
type ActionKind string

const (
	KindReaction       ActionKind = "reaction"
	KindReactionRemove ActionKind = "reaction_remove"
	KindPollAnswer     ActionKind = "poll_answer"
)

// TokenType discriminates the closed reaction token variant.
type TokenType string

const (
	TokenEmoji       TokenType = "emoji"
	TokenCustomEmoji TokenType = "custom_emoji"
)

// ReactionToken identifies one reaction kind: a standard emoji by its symbol
// or a custom emoji by its platform identifier. The polymorphic payload from
// the transport is resolved into this type once, at the adapter boundary.
type ReactionToken struct {
	Type          TokenType `json:"type"`
	Emoji         string    `json:"emoji,omitempty"`
	CustomEmojiID string    `json:"custom_emoji_id,omitempty"`
}

// Key returns the deterministic string form used for set comparison and
// dedup keys, e.g. "emoji:👍" or "custom:5368324170671202286".
func (t ReactionToken) Key() string {
	if t.Type == TokenCustomEmoji {
		return "custom:" + t.CustomEmojiID
	}
	return "emoji:" + t.Emoji
}

// Scope identifies where an action happened: a message within a chat.
type Scope struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// GateKey returns the once-gate claim key for this scope.
func (s Scope) GateKey() string {
	return fmt.Sprintf("msg:%d:%d", s.ChatID, s.MessageID)
}

// PollGateKey returns the once-gate claim key for a poll.
func PollGateKey(pollID string) string {
	return "poll:" + pollID
}

// User is a lazily created subject with a cached balance projection.
// The balance must always equal the sum of fact magnitudes for the subject.
type User struct {
	SubjectID int64  `json:"subject_id"`
	Label     string `json:"label,omitempty"`
	Balance   int64  `json:"balance"`
}

// Fact is one immutable, uniquely keyed ledger entry. The tuple
// (SubjectID, Kind, Scope, DedupKey) is unique across all time; corrections
// are new facts with compensating magnitude, never updates.
type Fact struct {
	ID        string     `json:"id"`
	SubjectID int64      `json:"subject_id"`
	Kind      ActionKind `json:"kind"`
	Magnitude int64      `json:"magnitude"`
	Scope     Scope      `json:"scope"`
	DedupKey  string     `json:"dedup_key"`
	CreatedAt time.Time  `json:"created_at"`
}

// ReactionObservation is one before/after reaction transition for a
// (subject, scope) pair, as delivered by the transport adapter. Transient:
// consumed by classification and discarded.
type ReactionObservation struct {
	SubjectID int64
	Label     string
	Scope     Scope
	Before    []ReactionToken
	After     []ReactionToken
}

// PollObservation is one poll-answer delivery for a subject.
type PollObservation struct {
	SubjectID int64
	Label     string
	PollID    string
}

// KindTotal is a per-kind magnitude sum inside a reporting window.
type KindTotal struct {
	Kind  ActionKind `json:"kind"`
	Total int64      `json:"total"`
}

// WeeklyEntry is one leaderboard row of the weekly report.
type WeeklyEntry struct {
	SubjectID int64       `json:"subject_id"`
	Label     string      `json:"label,omitempty"`
	Total     int64       `json:"total"`
	Breakdown []KindTotal `json:"breakdown"`
}

// WeeklyReport is the rolling-week aggregate view. Empty Entries means no
// one scored inside the window; that is a result, never an error state.
type WeeklyReport struct {
	WeekStart time.Time     `json:"week_start"`
	Now       time.Time     `json:"now"`
	Entries   []WeeklyEntry `json:"entries"`
}

// BalanceEntry is one row of the all-time leaderboard.
type BalanceEntry struct {
	SubjectID int64  `json:"subject_id"`
	Label     string `json:"label,omitempty"`
	Balance   int64  `json:"balance"`
}

// LedgerStats holds aggregate ledger statistics for health reporting.
type LedgerStats struct {
	FactCount int64 `json:"fact_count"`
	UserCount int64 `json:"user_count"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	FactCount int64  `json:"fact_count"`
	UserCount int64  `json:"user_count"`
}

// MarshalJSON ensures nil slices in WeeklyReport marshal as [] not null.
func (r WeeklyReport) MarshalJSON() ([]byte, error) {
	if r.Entries == nil {
		r.Entries = []WeeklyEntry{}
	}
	type Alias WeeklyReport
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures a nil breakdown in WeeklyEntry marshals as [] not null.
func (e WeeklyEntry) MarshalJSON() ([]byte, error) {
	if e.Breakdown == nil {
		e.Breakdown = []KindTotal{}
	}
	type Alias WeeklyEntry
	return json.Marshal(Alias(e))
}
