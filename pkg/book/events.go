package book

import "github.com/ethereum/go-ethereum/common"

// OrderCreated is emitted by CreateSellOrder. Price and existence are
// public; the order quantity never appears in any event.
type OrderCreated struct {
	ID           OrderID
	Seller       common.Address
	Asset        AssetSymbol
	PricePerUnit uint64
}

// OrderFilled is emitted by every committed fill, including fills that
// moved zero units.
type OrderFilled struct {
	ID     OrderID
	Buyer  common.Address
	Seller common.Address
}

// OrderCancelled is emitted by CancelOrder.
type OrderCancelled struct {
	ID     OrderID
	Seller common.Address
}

// Event is a notification from the engine. Exactly one field is non-nil.
type Event struct {
	Created   *OrderCreated
	Filled    *OrderFilled
	Cancelled *OrderCancelled
}
