// Package promptledger provides versioned prompt definition management for
// LLM applications. It supports semantic-version resolution, fail-fast
// variable validation, JSON Schema output checking, and durable usage
// telemetry with derived per-prompt metrics.
package promptledger
