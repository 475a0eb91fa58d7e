package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLoggingState() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	auditLogger = nil
	auditPath = ""
}

// TestCategoriesLog tests that pipeline categories create log files when
// debug_mode is true.
func TestCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".evai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	Policy("decision rule=%s", "crisis_escalation")
	Rubrics("scored %d rubrics", 5)
	Healing("retry attempt %d", 1)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".evai", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	found := map[string]bool{}
	for _, e := range entries {
		for _, cat := range []string{"policy", "rubrics", "healing"} {
			if strings.Contains(e.Name(), cat) {
				found[cat] = true
			}
		}
	}
	for _, cat := range []string{"policy", "rubrics", "healing"} {
		if !found[cat] {
			t.Errorf("Expected log file for category %s", cat)
		}
	}
}

// TestProductionModeIsSilent verifies no log directory appears without debug mode.
func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled without config")
	}

	Orchestrator("this should go nowhere")

	if _, err := os.Stat(filepath.Join(tempDir, ".evai", "logs")); !os.IsNotExist(err) {
		t.Error("Expected no logs directory in production mode")
	}
}

// TestTimerStopWithDetail checks the timer logs its operation, duration and
// the formatted detail.
func TestTimerStopWithDetail(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".evai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"),
		[]byte(`{"logging": {"debug_mode": true, "level": "debug"}}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryKnowledge, "Rank")
	timer.StopWithDetail("%d candidates", 3)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".evai", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	var logged string
	for _, e := range entries {
		if strings.Contains(e.Name(), "knowledge") {
			data, err := os.ReadFile(filepath.Join(tempDir, ".evai", "logs", e.Name()))
			if err != nil {
				t.Fatalf("Failed to read knowledge log: %v", err)
			}
			logged = string(data)
		}
	}
	if !strings.Contains(logged, "Rank completed in") {
		t.Errorf("Expected timed operation in log, got %q", logged)
	}
	if !strings.Contains(logged, "(3 candidates)") {
		t.Errorf("Expected formatted detail in log, got %q", logged)
	}
}

// TestAuditTrailRoundTrip writes audit events and reads them back filtered
// by conversation.
func TestAuditTrailRoundTrip(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".evai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"),
		[]byte(`{"logging": {"debug_mode": true, "level": "debug"}}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("Failed to init audit: %v", err)
	}

	a := AuditWithConversation("conv-1")
	a.Log(AuditEvent{EventType: AuditTurnStart, Success: true})
	a.LogDecision("dec-1", "high_seed_match", 0.92)
	other := AuditWithConversation("conv-2")
	other.Log(AuditEvent{EventType: AuditTurnStart, Success: true})

	events, err := ReadAuditTrail("conv-1")
	if err != nil {
		t.Fatalf("Failed to read audit trail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for conv-1, got %d", len(events))
	}
	if events[1].EventType != AuditPolicyDecision {
		t.Errorf("Expected policy_decision event, got %s", events[1].EventType)
	}
	if events[1].Target != "high_seed_match" {
		t.Errorf("Expected rule id target, got %s", events[1].Target)
	}

	all, err := ReadAuditTrail("")
	if err != nil {
		t.Fatalf("Failed to read full audit trail: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 events total, got %d", len(all))
	}
}
