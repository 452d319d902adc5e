package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hyperengineering/tally/internal/engage"
	"github.com/hyperengineering/tally/internal/report"
)

// Sender is the outbound message surface the dispatcher needs. *Client
// satisfies it; tests substitute a recorder.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Commands is the command menu registered with Telegram at startup.
var Commands = []BotCommand{
	{Command: "start", Description: "What this bot does"},
	{Command: "rules", Description: "Scoring rules"},
	{Command: "my", Description: "Your XP balance"},
	{Command: "top", Description: "All-time leaderboard"},
	{Command: "week", Description: "This week's leaderboard"},
}

// Dispatcher routes decoded updates: reaction and poll observations go to
// the engagement service, command messages get replies, everything else is
// dropped. Implements UpdateHandler.
type Dispatcher struct {
	svc      *engage.Service
	engine   *report.Engine
	sender   Sender
	rules    engage.RuleSet
	ownerID  int64
	shutdown context.CancelFunc
}

// NewDispatcher creates a Dispatcher. shutdown is invoked by the owner's
// /shutdown command; ownerID 0 disables that command entirely.
func NewDispatcher(svc *engage.Service, engine *report.Engine, sender Sender, rules engage.RuleSet, ownerID int64, shutdown context.CancelFunc) *Dispatcher {
	return &Dispatcher{
		svc:      svc,
		engine:   engine,
		sender:   sender,
		rules:    rules,
		ownerID:  ownerID,
		shutdown: shutdown,
	}
}

// HandleUpdate routes one update. Errors are logged, never returned: a
// failed update must not stall the poll loop, and redelivery is already
// absorbed by the ledger's dedup layers.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd Update) {
	switch {
	case upd.MessageReaction != nil:
		d.handleReaction(ctx, upd.MessageReaction)
	case upd.PollAnswer != nil:
		d.handlePollAnswer(ctx, upd.PollAnswer)
	case upd.Message != nil:
		d.handleMessage(ctx, upd.Message)
	}
}

func (d *Dispatcher) handleReaction(ctx context.Context, mr *MessageReactionUpdated) {
	obs, ok := mr.Observation()
	if !ok {
		// Anonymous reactions carry no subject; nothing to score.
		slog.Debug("skipping anonymous reaction",
			"chat_id", mr.Chat.ID,
			"message_id", mr.MessageID,
		)
		return
	}

	result, err := d.svc.HandleReaction(ctx, obs)
	if err != nil {
		slog.Error("reaction handling failed",
			"error", err,
			"subject_id", obs.SubjectID,
			"chat_id", obs.Scope.ChatID,
			"message_id", obs.Scope.MessageID,
		)
		return
	}
	slog.Debug("reaction handled",
		"subject_id", obs.SubjectID,
		"status", result.Status.String(),
		"points", result.Points,
	)
}

func (d *Dispatcher) handlePollAnswer(ctx context.Context, pa *PollAnswer) {
	obs, ok := pa.Observation()
	if !ok {
		slog.Debug("skipping anonymous or retracted poll answer", "poll_id", pa.PollID)
		return
	}

	result, err := d.svc.HandlePollAnswer(ctx, obs)
	if err != nil {
		slog.Error("poll answer handling failed",
			"error", err,
			"subject_id", obs.SubjectID,
			"poll_id", obs.PollID,
		)
		return
	}
	slog.Debug("poll answer handled",
		"subject_id", obs.SubjectID,
		"status", result.Status.String(),
		"points", result.Points,
	)
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *Message) {
	cmd := parseCommand(msg.Text)
	if cmd == "" || msg.From == nil {
		return
	}

	switch cmd {
	case "start":
		d.reply(ctx, msg.Chat.ID, renderStart(d.rules.Points, d.ownerID != 0))
	case "rules":
		d.reply(ctx, msg.Chat.ID, renderRules(d.rules.Points))
	case "my":
		d.cmdMy(ctx, msg)
	case "top":
		d.cmdTop(ctx, msg)
	case "week":
		d.cmdWeek(ctx, msg)
	case "shutdown":
		d.cmdShutdown(ctx, msg)
	}
}

func (d *Dispatcher) cmdMy(ctx context.Context, msg *Message) {
	balance, err := d.svc.Balance(ctx, msg.From.ID)
	if err != nil {
		slog.Error("balance lookup failed", "error", err, "subject_id", msg.From.ID)
		d.reply(ctx, msg.Chat.ID, "Something went wrong, try again later")
		return
	}
	d.reply(ctx, msg.Chat.ID, renderMy(balance))
}

func (d *Dispatcher) cmdTop(ctx context.Context, msg *Message) {
	entries, err := d.svc.TopBalances(ctx, report.DefaultLimit)
	if err != nil {
		slog.Error("leaderboard lookup failed", "error", err)
		d.reply(ctx, msg.Chat.ID, "Something went wrong, try again later")
		return
	}
	d.reply(ctx, msg.Chat.ID, renderTop(entries))
}

func (d *Dispatcher) cmdWeek(ctx context.Context, msg *Message) {
	rep, err := d.engine.Weekly(ctx)
	if err != nil {
		slog.Error("weekly report failed", "error", err)
		d.reply(ctx, msg.Chat.ID, "Something went wrong, try again later")
		return
	}
	d.reply(ctx, msg.Chat.ID, renderWeekly(rep))
}

func (d *Dispatcher) cmdShutdown(ctx context.Context, msg *Message) {
	if d.ownerID == 0 || msg.From.ID != d.ownerID {
		d.reply(ctx, msg.Chat.ID, "⛔ You are not allowed to stop this bot")
		return
	}
	d.reply(ctx, msg.Chat.ID, "Shutting down… 👋")
	slog.Info("owner requested shutdown", "subject_id", msg.From.ID)
	if d.shutdown != nil {
		d.shutdown()
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if err := d.sender.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("send failed", "error", err, "chat_id", chatID)
	}
}

// parseCommand extracts a bot command from message text: "/week@tally_bot"
// yields "week". Non-command text yields "".
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd
}
