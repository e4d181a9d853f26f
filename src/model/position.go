package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideLong  = "long"
	SideShort = "short"
	SideFlat  = "flat"
)

// Position is an open contract held on behalf of a subscriber, either
// simulated locally or mirrored from the exchange. Size carries the side in
// its sign: positive is long, negative is short.
type Position struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	SubscriberUID string          `gorm:"size:60;index" json:"-"`
	Contract      string          `gorm:"size:50;not null" json:"contract"`
	Size          decimal.Decimal `gorm:"type:decimal(30,12)" json:"size"`
	Leverage      int             `gorm:"not null;default:1" json:"leverage"`
	Margin        decimal.Decimal `gorm:"type:decimal(30,12)" json:"margin"`
	EntryPrice    decimal.Decimal `gorm:"type:decimal(30,12)" json:"entry_price"`
	MarkPrice     decimal.Decimal `gorm:"type:decimal(30,12)" json:"mark_price"`
	UnrealisedPnl decimal.Decimal `gorm:"type:decimal(30,12)" json:"unrealised_pnl"`
	PnlPercentage decimal.Decimal `gorm:"type:decimal(30,12)" json:"pnl_percentage"`
	Simulated     bool            `gorm:"not null;default:true" json:"simulated"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) Side() string {
	switch {
	case p.Size.IsPositive():
		return SideLong
	case p.Size.IsNegative():
		return SideShort
	default:
		return SideFlat
	}
}

// Refresh recomputes the derived value fields against a new mark price.
// PnL for a short is the mirror image of a long, hence the sign of Size
// participates directly in the arithmetic.
func (p *Position) Refresh(markPrice decimal.Decimal) {
	if markPrice.IsZero() {
		return
	}
	p.MarkPrice = markPrice
	p.UnrealisedPnl = markPrice.Sub(p.EntryPrice).Mul(p.Size)
	if !p.Margin.IsZero() {
		p.PnlPercentage = p.UnrealisedPnl.Div(p.Margin).Mul(decimal.NewFromInt(100)).Round(4)
	}
	p.UpdatedAt = time.Now()
}
