package telegram

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/tally/internal/types"
)

var medals = []string{"🥇", "🥈", "🥉"}

// kindLabels are the short names used in breakdown lines.
var kindLabels = map[types.ActionKind]string{
	types.KindReaction:       "react",
	types.KindReactionRemove: "unreact",
	types.KindPollAnswer:     "poll",
}

// subjectTag renders a subject as @username when a label is known, else a
// bare numeric id.
func subjectTag(label string, subjectID int64) string {
	if label != "" {
		return "@" + label
	}
	return fmt.Sprintf("ID:%d", subjectID)
}

// renderMy formats the /my balance reply.
func renderMy(balance int64) string {
	return fmt.Sprintf("Your XP: %d", balance)
}

// renderTop formats the all-time leaderboard.
func renderTop(entries []types.BalanceEntry) string {
	if len(entries) == 0 {
		return "No scores yet 🥲"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Top %d\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s — %d XP\n", i+1, subjectTag(e.Label, e.SubjectID), e.Balance)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderWeekly formats the rolling-week leaderboard with per-kind
// breakdown lines. The week-start date renders in the report's own
// reference timezone.
func renderWeekly(rep types.WeeklyReport) string {
	since := rep.WeekStart.Format("02 Jan 2006")
	if len(rep.Entries) == 0 {
		return fmt.Sprintf("📅 This week (since %s): no scores yet 🥲", since)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 This week (since %s)\n", since)
	for i, e := range rep.Entries {
		badge := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			badge = medals[i]
		}
		fmt.Fprintf(&b, "%s %s — %d XP\n", badge, subjectTag(e.Label, e.SubjectID), e.Total)

		var parts []string
		for _, kt := range e.Breakdown {
			label, ok := kindLabels[kt.Kind]
			if !ok {
				label = string(kt.Kind)
			}
			parts = append(parts, fmt.Sprintf("%s:%d", label, kt.Total))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "   · %s\n", strings.Join(parts, " | "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderRules formats the current rule set for the /rules reply.
func renderRules(points map[types.ActionKind]int64) string {
	return fmt.Sprintf(
		"Rules:\n"+
			"• First reaction on a post: %+d XP\n"+
			"• Removing your last reaction: %+d XP\n"+
			"• Changing a reaction (👍→❤️) scores nothing\n"+
			"• Answering a poll: %+d XP\n"+
			"• Reactions must be non-anonymous and the bot must be an admin",
		points[types.KindReaction],
		points[types.KindReactionRemove],
		points[types.KindPollAnswer],
	)
}

// renderStart formats the /start greeting.
func renderStart(points map[types.ActionKind]int64, hasOwner bool) string {
	ownerHint := ""
	if hasOwner {
		ownerHint = "\n(Owner: /shutdown stops the bot)"
	}
	return fmt.Sprintf(
		"Ready to count XP ✅\n"+
			"• First reaction on a post: %+d XP\n"+
			"• Removing your last reaction: %+d XP\n\n"+
			"Commands: /rules /my /top /week%s",
		points[types.KindReaction],
		points[types.KindReactionRemove],
		ownerHint,
	)
}
