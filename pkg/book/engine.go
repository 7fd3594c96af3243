// Package book implements the confidential order book: sell orders with
// encrypted quantities, best-effort fills decided under encryption, and the
// clear payment settlement that accompanies a fill.
package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/helinwang/log15"

	"github.com/SarahWill6/StockRWA/pkg/seal"
)

// AssetRegistry maps a listed asset name to its token contract address. The
// engine resolves on every operation rather than caching, so registry
// changes are honored by later fills.
type AssetRegistry interface {
	Resolve(symbol AssetSymbol) (common.Address, bool)
}

// AssetToken holds confidential balances and moves a fill quantity from
// seller to buyer. The transfer must fail unless the caller holds a valid
// transient grant on the amount.
type AssetToken interface {
	ConfidentialTransferFrom(caller, from, to common.Address, amt seal.Amount) error
}

// TokenDirectory looks up the token contract behind a resolved address.
type TokenDirectory interface {
	TokenAt(addr common.Address) (AssetToken, bool)
}

// Engine owns the order records and executes the order lifecycle. All
// operations run one at a time, like transactions on a serialized ledger:
// an operation either fully commits or returns an error having changed
// nothing.
type Engine struct {
	addr     common.Address
	sealer   seal.Backend
	registry AssetRegistry
	tokens   TokenDirectory

	mu    sync.Mutex
	state *State
	feed  event.Feed
	now   func() time.Time
}

// NewEngine creates an engine executing at addr. The address is the
// principal the engine grants itself decryption rights under, so that the
// stored remaining amounts stay operable across fills.
func NewEngine(addr common.Address, state *State, sealer seal.Backend, registry AssetRegistry, tokens TokenDirectory) *Engine {
	return &Engine{
		addr:     addr,
		state:    state,
		sealer:   sealer,
		registry: registry,
		tokens:   tokens,
		now:      time.Now,
	}
}

// SetClock overrides the engine's clock. Call before use; tests drive
// expiry through it.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Address returns the engine's own principal address.
func (e *Engine) Address() common.Address {
	return e.addr
}

// SubscribeEvents delivers order notifications to ch until the
// subscription is unsubscribed.
func (e *Engine) SubscribeEvents(ch chan<- Event) event.Subscription {
	return e.feed.Subscribe(ch)
}

// CreateSellOrder ingests the encrypted quantity and stores a new active
// order. Decryption rights on the stored quantity go to the engine and the
// seller; the buyer side gets nothing until fill time.
func (e *Engine) CreateSellOrder(seller common.Address, symbol AssetSymbol, ct seal.Ciphertext, proof seal.Proof, pricePerUnit uint64) (OrderID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.sealer.EndCall()

	if _, ok := e.registry.Resolve(symbol); !ok {
		log.Warn("sell order for unlisted asset", "asset", symbol, "seller", seller.Hex())
		return 0, ErrAssetNotFound
	}

	amt, err := e.sealer.Ingest(ct, proof, seller)
	if err != nil {
		return 0, fmt.Errorf("ingest sell quantity: %w", err)
	}

	remaining, err := seal.Store(e.sealer, amt, e.addr, seller)
	if err != nil {
		return 0, err
	}

	id := e.state.NextOrderID()
	o := Order{
		ID:           id,
		Seller:       seller,
		Asset:        symbol,
		Remaining:    remaining,
		PricePerUnit: pricePerUnit,
		Active:       true,
		CreatedAt:    uint64(e.now().Unix()),
	}
	e.state.UpdateOrder(o)
	e.state.AddSellerOrder(seller, id)

	e.feed.Send(Event{Created: &OrderCreated{
		ID:           id,
		Seller:       seller,
		Asset:        symbol,
		PricePerUnit: pricePerUnit,
	}})
	return id, nil
}

// FillOrder fills up to the requested quantity against one named order.
//
// Feasibility is decided under encryption: if the request exceeds the
// remaining quantity the call still commits, transfers zero units and emits
// the filled event anyway. Rejecting instead would let an observer probe
// order depth through success and failure alone. Callers learn what they
// actually received from their own balance, not from the call status.
func (e *Engine) FillOrder(buyer common.Address, id OrderID, ct seal.Ciphertext, proof seal.Proof, payment uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.sealer.EndCall()

	o, ok := e.state.Order(id)
	if !ok {
		return ErrOrderNotFound
	}
	if !o.Active {
		return ErrOrderNotActive
	}
	if o.Expired(e.now()) {
		return ErrOrderExpired
	}
	if payment < o.PricePerUnit {
		return ErrInsufficientPayment
	}

	tokenAddr, ok := e.registry.Resolve(o.Asset)
	if !ok {
		log.Warn("order asset no longer listed", "order", id, "asset", o.Asset)
		return ErrAssetNotFound
	}
	token, ok := e.tokens.TokenAt(tokenAddr)
	if !ok {
		return fmt.Errorf("no token contract at %s for asset %s", tokenAddr.Hex(), o.Asset)
	}

	requested, err := e.sealer.Ingest(ct, proof, buyer)
	if err != nil {
		return fmt.Errorf("ingest fill quantity: %w", err)
	}

	canBuy, err := e.sealer.Le(requested, o.Remaining.Amount())
	if err != nil {
		return err
	}
	transfer, err := e.sealer.Select(canBuy, requested, e.sealer.Zero())
	if err != nil {
		return err
	}

	// The token may operate on the transfer amount for this call only.
	if err := e.sealer.GrantTransient(transfer, tokenAddr); err != nil {
		return err
	}
	if err := token.ConfidentialTransferFrom(e.addr, o.Seller, buyer, transfer); err != nil {
		return fmt.Errorf("settle asset transfer: %w", err)
	}

	// Always well defined: transfer was clamped to at most the remaining
	// quantity above.
	left, err := e.sealer.Sub(o.Remaining.Amount(), transfer)
	if err != nil {
		return err
	}
	remaining, err := seal.Store(e.sealer, left, e.addr, o.Seller)
	if err != nil {
		return err
	}
	o.Remaining = remaining
	e.state.UpdateOrder(o)

	// The buyer may decrypt what they actually received. The handle never
	// recurs, so the grant is effectively single use.
	if err := e.sealer.GrantPermanent(transfer, buyer); err != nil {
		return err
	}

	// Flat price settlement: the seller is paid PricePerUnit regardless
	// of the quantity moved, the rest of the tendered payment is refunded.
	e.state.Credit(o.Seller, o.PricePerUnit)
	if refund := payment - o.PricePerUnit; refund > 0 {
		e.state.Credit(buyer, refund)
	}

	e.feed.Send(Event{Filled: &OrderFilled{ID: id, Buyer: buyer, Seller: o.Seller}})
	return nil
}

// CancelOrder deactivates an order for good. Nothing is refunded: the
// remaining quantity never left the seller's token balance, it was only
// offered.
func (e *Engine) CancelOrder(caller common.Address, id OrderID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.state.Order(id)
	if !ok {
		return ErrOrderNotFound
	}
	if !o.Active {
		return ErrOrderNotActive
	}
	if caller != o.Seller {
		return ErrOnlySellerCanCancel
	}

	o.Active = false
	e.state.UpdateOrder(o)

	e.feed.Send(Event{Cancelled: &OrderCancelled{ID: id, Seller: o.Seller}})
	return nil
}

// Order returns the order record by id.
func (e *Engine) Order(id OrderID) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.state.Order(id)
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// SellerOrders lists every order id the seller created, oldest first.
func (e *Engine) SellerOrders(seller common.Address) []OrderID {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.SellerOrders(seller)
}

// IsExpired reports whether the order is past its fill window.
func (e *Engine) IsExpired(id OrderID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.state.Order(id)
	if !ok {
		return false, ErrOrderNotFound
	}
	return o.Expired(e.now()), nil
}

// Funds returns the clear balance addr may withdraw.
func (e *Engine) Funds(addr common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Funds(addr)
}

// Withdraw removes quant from addr's settled funds.
func (e *Engine) Withdraw(addr common.Address, quant uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Debit(addr, quant)
}
