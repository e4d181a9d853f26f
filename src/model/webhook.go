package model

import (
	"fmt"
	"time"
)

// WebhookRegistration is the single admin-owned inbound webhook: its shared
// secret and the strategy allow-list. An empty Routes set means unrestricted
// delivery; a non-empty set only lets the listed strategies through.
type WebhookRegistration struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Secret    string    `gorm:"size:64;not null" json:"secret"`
	Routes    []string  `gorm:"serializer:json" json:"routes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WebhookRegistration) TableName() string {
	return "webhook_registrations"
}

// URL renders the TradingView-facing webhook URL for the host the admin
// request arrived on.
func (w *WebhookRegistration) URL(scheme, host string) string {
	return fmt.Sprintf("%s://%s/webhook/%s", scheme, host, w.Secret)
}

// AllowsStrategy applies the admin routing filter.
func (w *WebhookRegistration) AllowsStrategy(strategyID string) bool {
	if len(w.Routes) == 0 {
		return true
	}
	for _, id := range w.Routes {
		if id == strategyID {
			return true
		}
	}
	return false
}
