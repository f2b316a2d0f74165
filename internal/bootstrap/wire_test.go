package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"lifeline/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIFELINE_DB_FILE", filepath.Join(dir, "records.db"))
	t.Setenv("LIFELINE_SCRIPT_FILE", filepath.Join(dir, "lines.toml"))
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")

	services, err := Build("", noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Lines == nil || services.Store == nil || services.Dispatch == nil {
		t.Fatalf("service graph incomplete: %+v", services)
	}
	if services.Lines.Greeting() == "" {
		t.Fatalf("script defaults missing")
	}

	session := services.NewSession()
	if session == nil {
		t.Fatalf("expected a session controller")
	}
	if session.Status() != domain.CallStatusInitiating {
		t.Fatalf("new session must start in initiating, got %s", session.Status())
	}
}

func TestBuildFailsOnMalformedScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "lines.toml")
	if err := os.WriteFile(script, []byte("greeting = [broken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("LIFELINE_DB_FILE", filepath.Join(dir, "records.db"))
	t.Setenv("LIFELINE_SCRIPT_FILE", script)

	if _, err := Build("", noopEventSink{}); err == nil {
		t.Fatalf("expected build error for a malformed script file")
	}
}

func TestBuildFailsOnMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "lifeline.toml")
	if err := os.WriteFile(config, []byte("[call\nbroken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Build(config, noopEventSink{}); err == nil {
		t.Fatalf("expected build error for a malformed config file")
	}
}

type noopEventSink struct{}

func (noopEventSink) CallStateChanged(_ domain.CallStatus, _ domain.CallStateReason) {}
func (noopEventSink) TurnAppended(_ domain.Turn)                                     {}
func (noopEventSink) CallError(_ domain.ErrorCode, _ string)                         {}
