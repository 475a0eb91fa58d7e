package core

import "errors"

// Sentinel errors used by auto-heal to classify failures. Timeout-like and
// store errors are retried; the rest route to template fallback or HITL.
var (
	// ErrBlocked marks a turn stopped by the safety guard, TD-Matrix or a
	// halt_output governance rule.
	ErrBlocked = errors.New("response blocked")

	// ErrNoCompletion marks an LLM call that returned nothing usable.
	ErrNoCompletion = errors.New("no completion returned")

	// ErrStoreUnavailable marks a seed/decision store failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrValidationFailed marks a plan or response that failed validation.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPromptInjection marks seed content that looks like an instruction
	// smuggling attempt and must not reach a prompt template.
	ErrPromptInjection = errors.New("prompt injection detected")
)
