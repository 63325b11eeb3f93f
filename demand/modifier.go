package demand

import (
	"fmt"
	"strings"

	"github.com/warp/harvest-engine/calendar"
)

// =============================================================================
// MODIFIERS - Market events and marketing campaigns
// =============================================================================

// Scope selects which products a modifier touches.
type Scope string

const (
	ScopeProduct   Scope = "product"
	ScopeCategory  Scope = "category"
	ScopeAttribute Scope = "attribute" // Target is "key=value"
	ScopeAll       Scope = "all"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeProduct, ScopeCategory, ScopeAttribute, ScopeAll:
		return true
	}
	return false
}

// Kind tells events from campaigns. Both multiply demand the same way.
type Kind string

const (
	KindEvent    Kind = "event"
	KindCampaign Kind = "campaign"
)

// MaxMultiplier bounds a single event or campaign.
const MaxMultiplier = 10.0

// Modifier multiplies demand of matching products on days within [Start, End].
type Modifier struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Name       string        `json:"name"`
	Scope      Scope         `json:"scope"`
	Target     string        `json:"target,omitempty"`
	Multiplier float64       `json:"multiplier"`
	Start      calendar.Date `json:"start"`
	End        calendar.Date `json:"end"`
}

// Validate checks the scope/target pair and the multiplier.
func (m Modifier) Validate() error {
	if !m.Scope.Valid() {
		return fmt.Errorf("modifier %s: invalid scope %q", m.ID, m.Scope)
	}
	if m.Scope != ScopeAll && m.Target == "" {
		return fmt.Errorf("modifier %s: scope %s needs a target", m.ID, m.Scope)
	}
	if m.Scope == ScopeAttribute && !strings.Contains(m.Target, "=") {
		return fmt.Errorf("modifier %s: attribute target must be key=value", m.ID)
	}
	if !(m.Multiplier > 0 && m.Multiplier <= MaxMultiplier) {
		return fmt.Errorf("modifier %s: multiplier must be in (0, %g]", m.ID, MaxMultiplier)
	}
	if m.End.Before(m.Start) {
		return fmt.Errorf("modifier %s: %w", m.ID, calendar.ErrInvalidRange)
	}
	return nil
}

// ActiveOn reports whether d falls within the modifier's window.
func (m Modifier) ActiveOn(d calendar.Date) bool {
	return calendar.Range{Start: m.Start, End: m.End}.Contains(d)
}

// Target describes a product for modifier matching.
type Target struct {
	ProductID  string
	Category   string
	Attributes map[string]string
}

// Matches reports whether the modifier applies to the product.
func (m Modifier) Matches(t Target) bool {
	switch m.Scope {
	case ScopeAll:
		return true
	case ScopeProduct:
		return m.Target == t.ProductID
	case ScopeCategory:
		return strings.EqualFold(m.Target, t.Category)
	case ScopeAttribute:
		key, value, _ := strings.Cut(m.Target, "=")
		return strings.EqualFold(t.Attributes[key], value)
	}
	return false
}

// Combined multiplies every modifier of the given kind active for t on d.
func Combined(mods []Modifier, kind Kind, t Target, d calendar.Date) float64 {
	total := 1.0
	for _, m := range mods {
		if m.Kind == kind && m.ActiveOn(d) && m.Matches(t) {
			total *= m.Multiplier
		}
	}
	return total
}
