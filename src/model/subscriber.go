package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusNotRegistered = "not_registered"
	StatusPending       = "pending"
	StatusApproved      = "approved"
	StatusDenied        = "denied"
)

// AccessError is the machine-readable reason a uid+key credential check
// failed. The literal values are part of the HTTP contract.
type AccessError string

const (
	ErrMissingCredentials     AccessError = "missing_credentials"
	ErrUIDNotFound            AccessError = "uid_not_found"
	ErrUIDCredentialsMismatch AccessError = "uid_credentials_mismatch"
	ErrUIDNotApproved         AccessError = "uid_not_approved"
)

func (e AccessError) Error() string { return string(e) }

// ExchangeConnection holds a subscriber's exchange API credentials. The
// secret is sealed at rest and never rendered; the key is masked on read.
type ExchangeConnection struct {
	Connected       bool       `gorm:"column:connected" json:"connected"`
	APIKey          string     `gorm:"column:api_key;size:128" json:"-"`
	SealedSecret    []byte     `gorm:"column:api_secret_sealed" json:"-"`
	LastConnectedAt *time.Time `gorm:"column:last_connected_at" json:"last_connected_at,omitempty"`
}

// Subscriber is a user identified by an external UID who receives signals
// for the strategies an admin approved them for.
type Subscriber struct {
	UID                 string              `gorm:"primaryKey;size:60" json:"uid"`
	Status              string              `gorm:"size:20;not null;default:pending" json:"status"`
	RequestedStrategies []string            `gorm:"serializer:json" json:"requested_strategies"`
	ApprovedStrategies  []string            `gorm:"serializer:json" json:"approved_strategies"`
	AccessKey           string              `gorm:"size:64" json:"-"`
	AutoTrading         bool                `gorm:"not null;default:false" json:"auto_trading"`
	InvestmentAmount    decimal.Decimal     `gorm:"type:decimal(30,12)" json:"investment_amount"`
	Leverage            int                 `gorm:"not null;default:1" json:"leverage"`
	PinnedSymbol        string              `gorm:"size:50" json:"pinned_symbol,omitempty"`
	Exchange            *ExchangeConnection `gorm:"embedded;embeddedPrefix:exchange_" json:"exchange,omitempty"`
	Positions           []Position          `gorm:"foreignKey:SubscriberUID;references:UID" json:"positions,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	ApprovedAt          *time.Time          `json:"approved_at,omitempty"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

func (s *Subscriber) IsApproved() bool {
	return s.Status == StatusApproved
}

// HasStrategy reports whether the strategy id is in the approved set.
func (s *Subscriber) HasStrategy(strategyID string) bool {
	for _, id := range s.ApprovedStrategies {
		if id == strategyID {
			return true
		}
	}
	return false
}

// ExchangeConnected reports whether usable exchange credentials are on file.
func (s *Subscriber) ExchangeConnected() bool {
	return s.Exchange != nil && s.Exchange.Connected && s.Exchange.APIKey != ""
}

// SubscriberResponse is the read-surface rendering of a subscriber. The
// access key never appears; the exchange API key is masked.
type SubscriberResponse struct {
	UID                 string          `json:"uid"`
	Status              string          `json:"status"`
	RequestedStrategies []string        `json:"requested_strategies"`
	ApprovedStrategies  []string        `json:"approved_strategies"`
	AutoTrading         bool            `json:"auto_trading"`
	InvestmentAmount    decimal.Decimal `json:"investment_amount"`
	Leverage            int             `json:"leverage"`
	PinnedSymbol        string          `json:"pinned_symbol,omitempty"`
	ExchangeConnected   bool            `json:"exchange_connected"`
	MaskedAPIKey        string          `json:"masked_api_key,omitempty"`
	LastConnectedAt     *time.Time      `json:"last_connected_at,omitempty"`
	OpenPositions       int             `json:"open_positions"`
	CreatedAt           time.Time       `json:"created_at"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
}

func (s *Subscriber) ToResponse() SubscriberResponse {
	resp := SubscriberResponse{
		UID:                 s.UID,
		Status:              s.Status,
		RequestedStrategies: s.RequestedStrategies,
		ApprovedStrategies:  s.ApprovedStrategies,
		AutoTrading:         s.AutoTrading,
		InvestmentAmount:    s.InvestmentAmount,
		Leverage:            s.Leverage,
		PinnedSymbol:        s.PinnedSymbol,
		OpenPositions:       len(s.Positions),
		CreatedAt:           s.CreatedAt,
		ApprovedAt:          s.ApprovedAt,
	}
	if s.Exchange != nil {
		resp.ExchangeConnected = s.Exchange.Connected
		resp.MaskedAPIKey = MaskKey(s.Exchange.APIKey)
		resp.LastConnectedAt = s.Exchange.LastConnectedAt
	}
	return resp
}

// MaskKey keeps the first and last four characters of a credential for
// display and replaces the middle with asterisks.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// AccountSummary is the derived balance view recalculated after every
// execution attempt and served to the dashboard poll.
type AccountSummary struct {
	AvailableBalance decimal.Decimal `json:"available_balance"`
	UsedMargin       decimal.Decimal `json:"used_margin"`
	UnrealisedPnl    decimal.Decimal `json:"unrealised_pnl"`
	Equity           decimal.Decimal `json:"equity"`
}

// Summarize recomputes the account summary from the subscriber's configured
// investment amount and open positions.
func (s *Subscriber) Summarize() AccountSummary {
	sum := AccountSummary{AvailableBalance: s.InvestmentAmount}
	for _, p := range s.Positions {
		sum.UsedMargin = sum.UsedMargin.Add(p.Margin)
		sum.UnrealisedPnl = sum.UnrealisedPnl.Add(p.UnrealisedPnl)
	}
	sum.AvailableBalance = sum.AvailableBalance.Sub(sum.UsedMargin)
	sum.Equity = s.InvestmentAmount.Add(sum.UnrealisedPnl)
	return sum
}
