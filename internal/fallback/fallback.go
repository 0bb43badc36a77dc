// Package fallback holds the static always-available decisions returned when
// live computation times out or fails. The game loop must never stall
// waiting on AI, so there is an answer for every broad action category.
package fallback

import "github.com/ashita-ai/sente/internal/model"

// Action categories with a static default.
const (
	CategoryAttack = "attack"
	CategoryDefend = "defend"
	CategoryWait   = "wait"
)

// Confidence marks a degraded decision. Callers inspecting Confidence can
// tell a real decision from a fallback.
const Confidence = 0.3

// Table maps action categories to static decisions. Immutable after New.
type Table struct {
	decisions map[string]model.Decision
}

// New builds the default table.
func New() *Table {
	return &Table{decisions: map[string]model.Decision{
		CategoryAttack: {
			Action:     "basic_attack",
			Confidence: Confidence,
			Rationale:  "fallback: attack nearest enemy",
		},
		CategoryDefend: {
			Action:     "defend",
			Confidence: Confidence,
			Rationale:  "fallback: hold position and guard",
		},
		CategoryWait: {
			Action:     "wait",
			Confidence: Confidence,
			Rationale:  "fallback: pass the turn",
		},
	}}
}

// For returns the fallback decision for a category. Unknown or empty
// categories get the attack fallback: a safe basic action reads better in
// play than a unit doing nothing.
func (t *Table) For(category string) model.Decision {
	if d, ok := t.decisions[category]; ok {
		return d
	}
	return t.decisions[CategoryAttack]
}
