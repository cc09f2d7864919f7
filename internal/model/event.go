package model

import "time"

// Event types published on the agent event bus.
const (
	EventAgentStarted        = "agent:started"
	EventAgentStopped        = "agent:stopped"
	EventSkillCalling        = "skill:calling"
	EventSkillCompleted      = "skill:completed"
	EventSkillFailed         = "skill:failed"
	EventIntelRequest        = "intel:request"
	EventIntelCompleted      = "intel:completed"
	EventIntelFailed         = "intel:failed"
	EventProfitEngineStarted = "profit-engine:started"
	EventProfitEngineCheck   = "profit-engine:check"
	EventProfitEngineStopped = "profit-engine:stopped"
	EventReinvestStarting    = "reinvest:starting"
	EventReinvestCompleted   = "reinvest:completed"
	EventReinvestFailed      = "reinvest:failed"
	EventBalanceUpdated      = "balance:updated"
	EventServerStarted       = "server:started"
)

// AgentEvent is a lifecycle notification fanned out to dashboard listeners.
// Events are advisory only; nothing load-bearing reads them back.
type AgentEvent struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}
