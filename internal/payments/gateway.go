package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest asks the card gateway to capture an amount.
type ChargeRequest struct {
	Amount    decimal.Decimal
	CardToken string
	Reference string
}

// ChargeResult is the processor's confirmation of a captured charge.
type ChargeResult struct {
	ExternalID string
	SettledAt  time.Time
}

// CardGateway is the external payment processor. Charge must respect the
// context deadline; callers invoke it outside any storage transaction so a
// slow processor never holds a row lock.
type CardGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
