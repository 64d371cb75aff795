package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"paperdesk/internal/schema"
)

// Position is the net exposure held in one symbol.
type Position struct {
	Symbol        string              `json:"symbol"`
	Side          schema.PositionSide `json:"side"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AveragePrice  decimal.Decimal     `json:"averagePrice"`
	UnrealizedPnL decimal.Decimal     `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal     `json:"realizedPnl"`
	TotalFees     decimal.Decimal     `json:"totalFees"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Net returns the signed quantity: positive long, negative short.
func (p Position) Net() decimal.Decimal {
	if p.Side == schema.PositionSideShort {
		return p.Quantity.Neg()
	}
	return p.Quantity
}

// pnl returns the profit of closing qty of p at price.
func (p Position) pnl(price, qty decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.AveragePrice)
	if p.Side == schema.PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

func sideOf(net decimal.Decimal) schema.PositionSide {
	switch net.Sign() {
	case 1:
		return schema.PositionSideLong
	case -1:
		return schema.PositionSideShort
	default:
		return schema.PositionSideFlat
	}
}
