package model

import (
	"strings"
	"time"
	"unicode"
)

// Strategy is a named signal source that TradingView alerts are matched against.
// Strategies are created by admin action and deactivated, never deleted.
type Strategy struct {
	ID          string    `gorm:"primaryKey;size:60" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"size:512" json:"description,omitempty"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	Aliases     []string  `gorm:"serializer:json" json:"aliases"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Strategy) TableName() string {
	return "strategies"
}

// NormalizeIndicator lower-cases the input and strips everything that is not
// a letter or digit. "BTC Momentum v2" and "btc-momentum-v2" collapse to the
// same alias, which is what makes free-form TradingView alert names matchable.
func NormalizeIndicator(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HasAlias reports whether the normalized form of raw is a member of the
// strategy's alias set. Exact membership only, no fuzzy matching.
func (s *Strategy) HasAlias(raw string) bool {
	norm := NormalizeIndicator(raw)
	if norm == "" {
		return false
	}
	for _, a := range s.Aliases {
		if a == norm {
			return true
		}
	}
	return false
}

// BuildAliases assembles the alias set for a strategy from its name, id and
// any admin-supplied synonyms, de-duplicated in normalized form.
func BuildAliases(id, name string, synonyms []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(synonyms)+2)
	for _, raw := range append([]string{name, id}, synonyms...) {
		norm := NormalizeIndicator(raw)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
