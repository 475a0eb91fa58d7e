package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"evai/internal/logging"
	"evai/internal/types"
)

// BriefingCache holds per-conversation strategic briefings with a
// wall-clock TTL. The cache is passed to the orchestrator explicitly so
// tests and multiple instances never share state.
type BriefingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]types.Briefing
	now     func() time.Time
}

// NewBriefingCache creates a cache with the given TTL.
func NewBriefingCache(ttl time.Duration) *BriefingCache {
	return &BriefingCache{
		ttl:     ttl,
		entries: make(map[string]types.Briefing),
		now:     time.Now,
	}
}

// Get returns the cached briefing for a conversation, or false when
// missing or expired. Expired entries are evicted.
func (c *BriefingCache) Get(conversationID string) (types.Briefing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.entries[conversationID]
	if !ok {
		return types.Briefing{}, false
	}
	if b.Expired(c.now(), c.ttl) {
		delete(c.entries, conversationID)
		return types.Briefing{}, false
	}
	return b, true
}

// Put stores a briefing for a conversation.
func (c *BriefingCache) Put(b types.Briefing) {
	c.mu.Lock()
	c.entries[b.ConversationID] = b
	c.mu.Unlock()
}

// Len returns the number of cached briefings, expired ones included.
func (c *BriefingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// needsBriefing decides whether this turn warrants strategic context:
// high risk, a complex message early in the conversation, or a shaky
// previous turn.
func (o *Orchestrator) needsBriefing(in types.TurnInput, risk float64, complex bool) bool {
	if risk > o.cfg.Orchestrator.BriefingRiskThreshold {
		return true
	}
	if in.TurnIndex < o.cfg.Orchestrator.BriefingEarlyTurns && complex {
		return true
	}
	return in.PrevConfidence > 0 && in.PrevConfidence < o.cfg.Orchestrator.BriefingLowConfidence
}

const briefingSystemPrompt = `Je bent een strategie-assistent voor een Nederlandstalige steun-app.
Vat in twee of drie zinnen samen waar dit gesprek om draait en waar de app op moet letten.
Noem daarna maximaal drie aandachtspunten, elk op een eigen regel beginnend met "- ".`

// briefing returns the cached briefing or generates a fresh one. A
// generation failure is logged and skipped, never fatal for the turn.
func (o *Orchestrator) briefing(ctx context.Context, in types.TurnInput, risk float64) *types.Briefing {
	if cached, ok := o.briefings.Get(in.ConversationID); ok {
		logging.OrchestratorDebug("briefing cache hit for %s", in.ConversationID)
		return &cached
	}

	history := o.historySnippet(in.ConversationID)
	prompt := "Bericht van deze beurt: " + in.Message
	if history != "" {
		prompt = "Eerdere beurten:\n" + history + "\n\n" + prompt
	}

	raw, err := o.llm.CompleteWithSystem(ctx, briefingSystemPrompt, prompt)
	if err != nil {
		logging.OrchestratorWarn("briefing generation failed: %v", err)
		return nil
	}

	b := parseBriefing(in.ConversationID, raw)
	b.GeneratedAt = time.Now()
	o.briefings.Put(b)

	logging.AuditWithConversation(in.ConversationID).Log(logging.AuditEvent{
		EventType: logging.AuditBriefing,
		Category:  string(logging.CategoryOrchestrator),
		Success:   true,
		Fields:    map[string]interface{}{"risk": risk, "focus_areas": len(b.FocusAreas)},
	})
	return &b
}

func parseBriefing(conversationID, raw string) types.Briefing {
	b := types.Briefing{ConversationID: conversationID}
	var summary []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			b.FocusAreas = append(b.FocusAreas, strings.TrimPrefix(line, "- "))
			continue
		}
		summary = append(summary, line)
	}
	b.Summary = strings.Join(summary, " ")
	return b
}

// historySnippet returns the last few turns as prompt context.
func (o *Orchestrator) historySnippet(conversationID string) string {
	turns, err := o.store.History(conversationID, 3)
	if err != nil {
		logging.OrchestratorDebug("history unavailable: %v", err)
		return ""
	}
	var lines []string
	// History is newest first; replay oldest first.
	for i := len(turns) - 1; i >= 0; i-- {
		lines = append(lines, "Gebruiker: "+turns[i].UserInput)
		lines = append(lines, "App: "+turns[i].Response)
	}
	return strings.Join(lines, "\n")
}
