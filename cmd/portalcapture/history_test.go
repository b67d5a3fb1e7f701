package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/model"
	"github.com/nao1215/portalcapture/internal/report"
)

// seedLedger creates a ledger in a temp dir with three finished runs.
func seedLedger(t *testing.T) (string, *database.RunDB) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	now := time.Now()
	runs := []*database.Run{
		{
			ID: "run-old", Identity: "student001", Kind: model.KindTests,
			TargetURL: "http://portal.test/marks.php",
			StartedAt: now.Add(-48 * time.Hour), FinishedAt: now.Add(-48*time.Hour + 3*time.Second),
			State: model.StateDone, ArtifactPath: "/data/files/student001_tests.png", Digest: strings.Repeat("ab", 32),
		},
		{
			ID: "run-rejected", Identity: "student002", Kind: model.KindTests,
			TargetURL: "http://portal.test/marks.php",
			StartedAt: now.Add(-time.Hour), FinishedAt: now.Add(-time.Hour + time.Second),
			State: model.StateRejected, ErrorKind: model.ErrorKindAuthentication,
			ErrorMessage: "authentication failed: portal did not accept identity",
		},
		{
			ID: "run-new", Identity: "student001", Kind: model.KindAttendance,
			TargetURL: "http://portal.test/attendance.php",
			StartedAt: now.Add(-time.Minute), FinishedAt: now.Add(-time.Minute + 2*time.Second),
			State: model.StateDone, ArtifactPath: "/data/files/student001_attendance.png", Digest: strings.Repeat("cd", 32),
		},
	}
	for _, run := range runs {
		finished := *run
		run.State = ""
		if err := db.StartRun(ctx, run); err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		if err := db.FinishRun(ctx, &finished); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
	}
	return dir, db
}

// newTestCmd returns a command whose output is captured in the buffers.
func newTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := NewHistoryCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetContext(context.Background())
	return cmd, &out, &errOut
}

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history" {
		t.Errorf("expected use 'history', got %q", cmd.Use)
	}
	for _, name := range []string{"identity", "kind", "limit", "format", "prune"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag %q", name)
		}
	}
	if got := cmd.Flags().Lookup("format").DefValue; got != report.FormatText {
		t.Errorf("format default = %q, want %q", got, report.FormatText)
	}
}

func TestShowHistory(t *testing.T) {
	t.Parallel()

	t.Run("text lists every run", func(t *testing.T) {
		t.Parallel()
		_, db := seedLedger(t)
		cmd, out, _ := newTestCmd()

		if err := showHistory(cmd, db, historyOptions{format: report.FormatText, limit: 10}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		for _, want := range []string{"CAPTURE HISTORY", "Runs:      3", "Succeeded: 2", "Rejected:  1", "student001_attendance.png"} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("json filtered by identity", func(t *testing.T) {
		t.Parallel()
		_, db := seedLedger(t)
		cmd, out, _ := newTestCmd()

		err := showHistory(cmd, db, historyOptions{format: report.FormatJSON, identity: "student001"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var h report.History
		if err := json.Unmarshal(out.Bytes(), &h); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out.String())
		}
		if h.Identity != "student001" || len(h.Runs) != 2 {
			t.Fatalf("history = %+v", h)
		}
		if h.Runs[0].ID != "run-new" {
			t.Errorf("expected newest run first, got %q", h.Runs[0].ID)
		}
	})

	t.Run("markdown filtered by kind", func(t *testing.T) {
		t.Parallel()
		_, db := seedLedger(t)
		cmd, out, _ := newTestCmd()

		err := showHistory(cmd, db, historyOptions{format: report.FormatMarkdown, kind: string(model.KindAttendance)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		if !strings.Contains(got, "# Capture History") || !strings.Contains(got, "attendance") {
			t.Errorf("unexpected markdown:\n%s", got)
		}
		if strings.Contains(got, "student002") {
			t.Errorf("kind filter not applied:\n%s", got)
		}
	})

	t.Run("prune removes old runs", func(t *testing.T) {
		t.Parallel()
		_, db := seedLedger(t)
		cmd, out, errOut := newTestCmd()

		err := showHistory(cmd, db, historyOptions{format: report.FormatJSON, prune: 24 * time.Hour})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(errOut.String(), "Pruned 1 run(s)") {
			t.Errorf("stderr = %q", errOut.String())
		}
		var h report.History
		if err := json.Unmarshal(out.Bytes(), &h); err != nil {
			t.Fatal(err)
		}
		if len(h.Runs) != 2 {
			t.Errorf("expected 2 runs after pruning, got %d", len(h.Runs))
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		_, db := seedLedger(t)
		cmd, _, _ := newTestCmd()

		err := showHistory(cmd, db, historyOptions{format: "xml"})
		if !errors.Is(err, report.ErrUnknownFormat) {
			t.Errorf("expected ErrUnknownFormat, got %v", err)
		}
	})
}

func TestGetHistoryOptions(t *testing.T) {
	t.Parallel()

	t.Run("negative limit", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		if err := cmd.Flags().Set("limit", "-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := getHistoryOptions(cmd); !errors.Is(err, errUsage) {
			t.Errorf("expected a usage error, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		opts, err := getHistoryOptions(NewHistoryCmd())
		if err != nil {
			t.Fatal(err)
		}
		if opts.limit != database.DefaultListLimit || opts.format != report.FormatText || opts.prune != 0 {
			t.Errorf("opts = %+v", opts)
		}
	})
}

func TestRunHistoryCmd(t *testing.T) {
	t.Run("reads the ledger from the data dir", func(t *testing.T) {
		dir, db := seedLedger(t)
		if err := db.Close(); err != nil {
			t.Fatal(err)
		}
		t.Setenv(config.EnvDataDir, dir)

		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"history", "--env-file", writeEnvFile(t, ""), "--format", "json"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), `"run-rejected"`) {
			t.Errorf("output missing run:\n%s", out.String())
		}
	})

	t.Run("data dir from env file", func(t *testing.T) {
		dir, db := seedLedger(t)
		if err := db.Close(); err != nil {
			t.Fatal(err)
		}
		t.Setenv(config.EnvDataDir, "")
		// The env file only fills variables that are unset.
		if err := os.Unsetenv(config.EnvDataDir); err != nil {
			t.Fatal(err)
		}

		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"history", "--env-file", writeEnvFile(t, config.EnvDataDir+"="+dir+"\n"), "-f", "json"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), `"run-new"`) {
			t.Errorf("output missing run:\n%s", out.String())
		}
	})
}
