package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/types"
)

// executeCmd runs a subcommand against a fresh rootCmd invocation and
// captures its output. Package-level flag state is reset first.
func executeCmd(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()

	reportDBOverride = ""
	reportJSONOutput = false
	reportLimit = 0

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), err
}

// seedDB creates a ledger at dir/tally.db with a few applied facts and
// returns its path.
func seedDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "tally.db")
	store, err := ledger.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.UpsertUser(ctx, 7, "ada"); err != nil {
		t.Fatalf("failed to upsert user: %v", err)
	}

	now := time.Now().UTC()
	facts := []types.Fact{
		{SubjectID: 7, Kind: types.KindReaction, Magnitude: 10,
			Scope: types.Scope{ChatID: -100, MessageID: 1}, DedupKey: "emoji:👍", CreatedAt: now},
		{SubjectID: 7, Kind: types.KindReaction, Magnitude: 10,
			Scope: types.Scope{ChatID: -100, MessageID: 2}, DedupKey: "emoji:👍", CreatedAt: now},
		{SubjectID: 8, Kind: types.KindPollAnswer, Magnitude: 10,
			DedupKey: "poll:p1", CreatedAt: now},
	}
	for _, f := range facts {
		if _, err := store.Apply(ctx, f); err != nil {
			t.Fatalf("failed to apply fact: %v", err)
		}
	}
	return dbPath
}

func TestTopCommand(t *testing.T) {
	dbPath := seedDB(t)

	out, err := executeCmd(t, "top", "--db", dbPath)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}

	if !strings.Contains(out, "@ada") {
		t.Errorf("output missing @ada: %s", out)
	}
	if !strings.Contains(out, "20") {
		t.Errorf("output missing balance 20: %s", out)
	}
}

func TestTopCommand_JSON(t *testing.T) {
	dbPath := seedDB(t)

	out, err := executeCmd(t, "top", "--db", dbPath, "--json")
	if err != nil {
		t.Fatalf("top --json failed: %v", err)
	}

	if !strings.Contains(out, `"total": 2`) {
		t.Errorf("output missing total: %s", out)
	}
	if !strings.Contains(out, `"subject_id": 7`) {
		t.Errorf("output missing subject 7: %s", out)
	}
}

func TestTopCommand_Limit(t *testing.T) {
	dbPath := seedDB(t)

	out, err := executeCmd(t, "top", "--db", dbPath, "--limit", "1")
	if err != nil {
		t.Fatalf("top --limit failed: %v", err)
	}

	if !strings.Contains(out, "@ada") {
		t.Errorf("output missing @ada: %s", out)
	}
	if strings.Contains(out, "\n2\t") {
		t.Errorf("expected a single rank row: %s", out)
	}
}

func TestTopCommand_EmptyDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, err := executeCmd(t, "top", "--db", dbPath)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	if !strings.Contains(out, "No scores yet.") {
		t.Errorf("output = %q, want empty message", out)
	}
}

func TestWeekCommand(t *testing.T) {
	dbPath := seedDB(t)

	out, err := executeCmd(t, "week", "--db", dbPath)
	if err != nil {
		t.Fatalf("week failed: %v", err)
	}

	if !strings.Contains(out, "Week of ") {
		t.Errorf("output missing week header: %s", out)
	}
	if !strings.Contains(out, "@ada") {
		t.Errorf("output missing @ada: %s", out)
	}
	if !strings.Contains(out, "reaction:20") {
		t.Errorf("output missing breakdown: %s", out)
	}
}

func TestVerifyCommand_Clean(t *testing.T) {
	dbPath := seedDB(t)

	out, err := executeCmd(t, "verify", "--db", dbPath)
	if err != nil {
		t.Fatalf("verify failed on clean ledger: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("clean verify printed: %s", out)
	}
}

func TestVerifyCommand_DetectsTampering(t *testing.T) {
	dbPath := seedDB(t)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	if _, err := db.Exec("UPDATE users SET balance = 999 WHERE subject_id = 7"); err != nil {
		t.Fatalf("failed to tamper: %v", err)
	}
	db.Close()

	out, err := executeCmd(t, "verify", "--db", dbPath)
	if err == nil {
		t.Fatal("expected verify to fail on a tampered ledger")
	}
	if !strings.Contains(out, "999") {
		t.Errorf("output missing cached balance 999: %s", out)
	}
}
