// Package logging provides audit logging for the decision pipeline.
// Audit logs are structured JSONL events, one line per pipeline decision,
// so a conversation's full decision trail can be reconstructed offline.
package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Turn lifecycle
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"

	// Safety guard
	AuditSafetyCheck  AuditEventType = "safety_check"
	AuditSafetyBlock  AuditEventType = "safety_block"
	AuditSafetyReview AuditEventType = "safety_review"

	// Scoring and profiling
	AuditRubricScored AuditEventType = "rubric_scored"
	AuditEAAProfile   AuditEventType = "eaa_profile"

	// Policy and ethics
	AuditPolicyDecision AuditEventType = "policy_decision"
	AuditEthicsRule     AuditEventType = "eai_rule_fired"
	AuditEthicsHalt     AuditEventType = "eai_halt"
	AuditTDEvaluated    AuditEventType = "td_evaluated"
	AuditTDBlock        AuditEventType = "td_block"

	// Validation and fusion
	AuditValidationFailed AuditEventType = "validation_failed"
	AuditFusionAssembled  AuditEventType = "fusion_assembled"

	// Knowledge
	AuditSeedUsed    AuditEventType = "seed_used"
	AuditSeedLearned AuditEventType = "seed_learned"
	AuditBriefing    AuditEventType = "briefing_generated"

	// Healing
	AuditHealAttempt  AuditEventType = "heal_attempt"
	AuditHealEscalate AuditEventType = "heal_escalate"

	// Infrastructure
	AuditLLMRequest AuditEventType = "llm_request"
	AuditLLMError   AuditEventType = "llm_error"
	AuditStoreWrite AuditEventType = "store_write"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents one structured audit log entry.
type AuditEvent struct {
	Timestamp      int64                  `json:"ts"` // Unix milliseconds
	EventType      AuditEventType         `json:"event"`
	Category       string                 `json:"cat"`
	ConversationID string                 `json:"conv"`
	DecisionID     string                 `json:"decision,omitempty"`
	Target         string                 `json:"target,omitempty"` // rule id, seed id, stage name
	Success        bool                   `json:"success"`
	DurationMs     int64                  `json:"dur_ms,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Message        string                 `json:"msg,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditPath   string
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging scoped to a conversation.
type AuditLogger struct {
	conversationID string
	category       Category
}

// InitAudit initializes the audit logging system. Unlike the category
// loggers, the audit trail is written even when debug mode is off: it is
// the accountability record, not a diagnostic.
func InitAudit() error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}
	if logsDir == "" {
		return fmt.Errorf("logging not initialized")
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	auditPath = filepath.Join(logsDir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithConversation creates an audit logger scoped to a conversation
func AuditWithConversation(conversationID string) *AuditLogger {
	return &AuditLogger{conversationID: conversationID}
}

// WithCategory returns a copy scoped to a pipeline category.
func (a *AuditLogger) WithCategory(category Category) *AuditLogger {
	return &AuditLogger{conversationID: a.conversationID, category: category}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.ConversationID == "" && a.conversationID != "" {
		event.ConversationID = a.conversationID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// LogDecision records a policy routing outcome.
func (a *AuditLogger) LogDecision(decisionID, ruleID string, confidence float64) {
	a.Log(AuditEvent{
		EventType:  AuditPolicyDecision,
		Category:   string(CategoryPolicy),
		DecisionID: decisionID,
		Target:     ruleID,
		Success:    true,
		Fields:     map[string]interface{}{"confidence": confidence},
	})
}

// LogError records a failed stage.
func (a *AuditLogger) LogError(eventType AuditEventType, stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    stage,
		Success:   false,
		Error:     msg,
	})
}

// =============================================================================
// AUDIT TRAIL QUERIES
// =============================================================================

// ReadAuditTrail returns the audit events recorded for a conversation in the
// current audit file, in write order. An empty conversation ID returns all
// events.
func ReadAuditTrail(conversationID string) ([]AuditEvent, error) {
	auditMu.Lock()
	path := auditPath
	auditMu.Unlock()

	if path == "" {
		return nil, fmt.Errorf("audit log not initialized")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // Skip malformed lines rather than failing the query
		}
		if conversationID == "" || event.ConversationID == conversationID {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	return events, nil
}
