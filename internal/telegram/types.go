// Package telegram is the Bot API transport adapter: a long-polling
// getUpdates client plus the update dispatcher that converts raw updates
// into domain observations and commands.
package telegram

import (
	"github.com/hyperengineering/tally/internal/types"
)

// Update is one Bot API update. Only the update kinds the bot subscribes
// to are decoded; everything else stays nil.
type Update struct {
	UpdateID        int64                   `json:"update_id"`
	Message         *Message                `json:"message,omitempty"`
	MessageReaction *MessageReactionUpdated `json:"message_reaction,omitempty"`
	PollAnswer      *PollAnswer             `json:"poll_answer,omitempty"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Message is an incoming chat message; the bot only reads command text.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// ReactionType is the Bot API's polymorphic reaction payload. The type
// field discriminates emoji, custom_emoji and paid variants.
type ReactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// Token resolves the wire variant into a domain reaction token. Paid and
// unknown variants resolve too: they carry the raw type as the emoji so
// distinct kinds stay distinguishable in dedup keys.
func (rt ReactionType) Token() types.ReactionToken {
	if rt.Type == "custom_emoji" {
		return types.ReactionToken{Type: types.TokenCustomEmoji, CustomEmojiID: rt.CustomEmojiID}
	}
	if rt.Type == "emoji" {
		return types.ReactionToken{Type: types.TokenEmoji, Emoji: rt.Emoji}
	}
	return types.ReactionToken{Type: types.TokenEmoji, Emoji: rt.Type}
}

// MessageReactionUpdated reports one user's reaction transition on one
// message. User is nil for anonymous reactions (ActorChat set instead).
type MessageReactionUpdated struct {
	Chat        Chat           `json:"chat"`
	MessageID   int64          `json:"message_id"`
	User        *User          `json:"user,omitempty"`
	ActorChat   *Chat          `json:"actor_chat,omitempty"`
	Date        int64          `json:"date"`
	OldReaction []ReactionType `json:"old_reaction"`
	NewReaction []ReactionType `json:"new_reaction"`
}

// Observation converts the transition into a domain observation. Returns
// false for anonymous reactions, which carry no attributable subject.
func (mr *MessageReactionUpdated) Observation() (types.ReactionObservation, bool) {
	if mr.User == nil {
		return types.ReactionObservation{}, false
	}
	return types.ReactionObservation{
		SubjectID: mr.User.ID,
		Label:     mr.User.Username,
		Scope:     types.Scope{ChatID: mr.Chat.ID, MessageID: mr.MessageID},
		Before:    tokens(mr.OldReaction),
		After:     tokens(mr.NewReaction),
	}, true
}

// PollAnswer reports a user's vote in a non-anonymous poll. User is nil
// for anonymous voters (VoterChat set instead).
type PollAnswer struct {
	PollID    string `json:"poll_id"`
	VoterChat *Chat  `json:"voter_chat,omitempty"`
	User      *User  `json:"user,omitempty"`
	OptionIDs []int  `json:"option_ids"`
}

// Observation converts the poll answer into a domain observation. Returns
// false for anonymous votes and vote retractions (empty option list).
func (pa *PollAnswer) Observation() (types.PollObservation, bool) {
	if pa.User == nil || len(pa.OptionIDs) == 0 {
		return types.PollObservation{}, false
	}
	return types.PollObservation{
		SubjectID: pa.User.ID,
		Label:     pa.User.Username,
		PollID:    pa.PollID,
	}, true
}

func tokens(rts []ReactionType) []types.ReactionToken {
	if len(rts) == 0 {
		return nil
	}
	out := make([]types.ReactionToken, len(rts))
	for i, rt := range rts {
		out[i] = rt.Token()
	}
	return out
}
