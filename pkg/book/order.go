package book

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SarahWill6/StockRWA/pkg/seal"
)

// AssetSymbol is the logical name of a listed asset, e.g. "AAPL".
type AssetSymbol string

// OrderID is a dense identifier assigned at creation. Zero is reserved for
// "not found" and is never assigned.
type OrderID uint64

// ExpiryWindow is how long an order stays fillable after creation. An order
// past the window can still be cancelled by its seller.
const ExpiryWindow = 24 * time.Hour

// Order is a sell order with an encrypted remaining quantity. Everything
// except the quantity is public: the existence of the order, its seller and
// its price are deliberately visible, the depth is not.
type Order struct {
	ID     OrderID
	Seller common.Address
	Asset  AssetSymbol

	// Remaining is the quantity still available to sell. It only ever
	// decreases, by homomorphic subtraction of an amount already proven
	// to be at most the current value.
	Remaining seal.Stored

	// PricePerUnit is the flat payment required by a fill, fixed at
	// creation. Zero is accepted.
	PricePerUnit uint64

	Active    bool
	CreatedAt uint64 // unix seconds
}

// Expired reports whether the order is past its fill window at now. The
// boundary instant itself is still fillable.
func (o *Order) Expired(now time.Time) bool {
	return now.Unix() > int64(o.CreatedAt)+int64(ExpiryWindow/time.Second)
}
