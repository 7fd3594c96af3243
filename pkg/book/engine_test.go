package book_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SarahWill6/StockRWA/pkg/asset"
	"github.com/SarahWill6/StockRWA/pkg/book"
	"github.com/SarahWill6/StockRWA/pkg/seal/local"
)

var (
	authority = common.BytesToAddress([]byte{0xaa})
	seller    = common.BytesToAddress([]byte{0x01})
	buyer     = common.BytesToAddress([]byte{0x02})
	outsider  = common.BytesToAddress([]byte{0x03})
)

type env struct {
	sealer   *local.Backend
	registry *asset.Registry
	token    *asset.Token
	engine   *book.Engine
	now      time.Time
}

// newEnv lists AAPL at reference price 150 and mints the seller 1000 units.
func newEnv(t *testing.T) *env {
	sealer := local.NewBackend()
	registry := asset.NewRegistry()
	factory := asset.NewFactory(registry, sealer, authority)

	token, err := factory.CreateAsset(authority, "AAPL", 150)
	require.NoError(t, err)

	ct, proof := local.Encrypt(1000, authority)
	require.NoError(t, token.Mint(authority, seller, ct, proof))

	state := book.NewState(ethdb.NewMemDatabase())
	engine := book.NewEngine(common.BytesToAddress([]byte{0xee}), state, sealer, registry, registry)

	v := &env{
		sealer:   sealer,
		registry: registry,
		token:    token,
		engine:   engine,
		now:      time.Unix(1700000000, 0),
	}
	engine.SetClock(func() time.Time { return v.now })
	return v
}

func (v *env) create(t *testing.T, quant, price uint64) book.OrderID {
	ct, proof := local.Encrypt(quant, seller)
	id, err := v.engine.CreateSellOrder(seller, "AAPL", ct, proof, price)
	require.NoError(t, err)
	return id
}

func (v *env) fill(id book.OrderID, quant, payment uint64) error {
	ct, proof := local.Encrypt(quant, buyer)
	return v.engine.FillOrder(buyer, id, ct, proof, payment)
}

func (v *env) remaining(t *testing.T, id book.OrderID) uint64 {
	o, err := v.engine.Order(id)
	require.NoError(t, err)

	// the seller holds a standing grant on the stored remaining amount
	quant, err := v.sealer.Reveal(o.Remaining.Amount(), seller)
	require.NoError(t, err)
	return quant
}

func (v *env) tokenBalance(t *testing.T, holder common.Address) uint64 {
	amt, ok := v.token.BalanceOf(holder)
	if !ok {
		return 0
	}

	quant, err := v.sealer.Reveal(amt, holder)
	require.NoError(t, err)
	return quant
}

func TestOrderIDsMonotonic(t *testing.T) {
	v := newEnv(t)

	id0 := v.create(t, 10, 1)
	id1 := v.create(t, 20, 2)
	id2 := v.create(t, 30, 3)

	assert.Equal(t, book.OrderID(1), id0)
	assert.Equal(t, book.OrderID(2), id1)
	assert.Equal(t, book.OrderID(3), id2)
	assert.Equal(t, []book.OrderID{id0, id1, id2}, v.engine.SellerOrders(seller))
}

func TestCreateUnlistedAsset(t *testing.T) {
	v := newEnv(t)

	ct, proof := local.Encrypt(10, seller)
	_, err := v.engine.CreateSellOrder(seller, "TSLA", ct, proof, 1)
	assert.Equal(t, book.ErrAssetNotFound, err)
	assert.Nil(t, v.engine.SellerOrders(seller))
}

func TestCreateRejectsBadProof(t *testing.T) {
	v := newEnv(t)

	// ciphertext produced for the buyer, submitted by the seller
	ct, proof := local.Encrypt(10, buyer)
	_, err := v.engine.CreateSellOrder(seller, "AAPL", ct, proof, 1)
	assert.True(t, errors.Is(err, local.ErrBadProof))
	assert.Nil(t, v.engine.SellerOrders(seller))
}

func TestFillScenario(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 1000, 150)

	require.NoError(t, v.fill(id, 400, 150))

	assert.Equal(t, uint64(600), v.remaining(t, id))
	assert.Equal(t, uint64(400), v.tokenBalance(t, buyer))
	assert.Equal(t, uint64(600), v.tokenBalance(t, seller))
	assert.Equal(t, uint64(150), v.engine.Funds(seller))
	assert.Equal(t, uint64(0), v.engine.Funds(buyer))
}

func TestOverfillTransfersZero(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	// more than remaining: commits, but moves nothing
	require.NoError(t, v.fill(id, 150, 10))

	assert.Equal(t, uint64(100), v.remaining(t, id))
	assert.Equal(t, uint64(0), v.tokenBalance(t, buyer))
	assert.Equal(t, uint64(1000), v.tokenBalance(t, seller))

	// payment settles regardless of the moved quantity
	assert.Equal(t, uint64(10), v.engine.Funds(seller))
}

func TestExactDepletion(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	require.NoError(t, v.fill(id, 100, 10))
	assert.Equal(t, uint64(0), v.remaining(t, id))
	assert.Equal(t, uint64(100), v.tokenBalance(t, buyer))

	// depleted but still active: any positive request now moves zero
	require.NoError(t, v.fill(id, 1, 10))
	assert.Equal(t, uint64(0), v.remaining(t, id))
	assert.Equal(t, uint64(100), v.tokenBalance(t, buyer))

	o, err := v.engine.Order(id)
	require.NoError(t, err)
	assert.True(t, o.Active)
}

func TestPaymentSettlement(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	require.NoError(t, v.fill(id, 40, 15))
	assert.Equal(t, uint64(10), v.engine.Funds(seller))
	assert.Equal(t, uint64(5), v.engine.Funds(buyer))

	// flat price: an overfill request pays exactly the same
	require.NoError(t, v.fill(id, 500, 15))
	assert.Equal(t, uint64(20), v.engine.Funds(seller))
	assert.Equal(t, uint64(10), v.engine.Funds(buyer))

	require.NoError(t, v.engine.Withdraw(buyer, 10))
	assert.Equal(t, uint64(0), v.engine.Funds(buyer))
	assert.Equal(t, book.ErrInsufficientFunds, v.engine.Withdraw(buyer, 1))
}

func TestFillPreconditions(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	assert.Equal(t, book.ErrOrderNotFound, v.fill(book.OrderID(42), 1, 10))
	assert.Equal(t, book.ErrInsufficientPayment, v.fill(id, 1, 9))

	// a rejected fill settles nothing
	assert.Equal(t, uint64(0), v.engine.Funds(seller))
	assert.Equal(t, uint64(100), v.remaining(t, id))

	ct, proof := local.Encrypt(1, seller) // proof bound to the wrong sender
	err := v.engine.FillOrder(buyer, id, ct, proof, 10)
	assert.True(t, errors.Is(err, local.ErrBadProof))

	require.NoError(t, v.engine.CancelOrder(seller, id))
	assert.Equal(t, book.ErrOrderNotActive, v.fill(id, 1, 10))
}

func TestExpiryBoundary(t *testing.T) {
	v := newEnv(t)
	created := v.now
	id := v.create(t, 100, 10)

	// the boundary instant itself is still fillable
	v.now = created.Add(book.ExpiryWindow)
	expired, err := v.engine.IsExpired(id)
	require.NoError(t, err)
	assert.False(t, expired)
	require.NoError(t, v.fill(id, 10, 10))

	v.now = created.Add(book.ExpiryWindow + time.Second)
	expired, err = v.engine.IsExpired(id)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, book.ErrOrderExpired, v.fill(id, 10, 10))

	// the seller can still cancel an expired order
	require.NoError(t, v.engine.CancelOrder(seller, id))

	_, err = v.engine.IsExpired(book.OrderID(42))
	assert.Equal(t, book.ErrOrderNotFound, err)
}

func TestCancel(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	assert.Equal(t, book.ErrOrderNotFound, v.engine.CancelOrder(seller, book.OrderID(42)))
	assert.Equal(t, book.ErrOnlySellerCanCancel, v.engine.CancelOrder(buyer, id))

	require.NoError(t, v.engine.CancelOrder(seller, id))
	o, err := v.engine.Order(id)
	require.NoError(t, err)
	assert.False(t, o.Active)

	// already cancelled wins over ownership, for any caller
	assert.Equal(t, book.ErrOrderNotActive, v.engine.CancelOrder(seller, id))
	assert.Equal(t, book.ErrOrderNotActive, v.engine.CancelOrder(buyer, id))

	// cancelled ids stay listed
	assert.Equal(t, []book.OrderID{id}, v.engine.SellerOrders(seller))
}

func TestRemainingStaysConfidential(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	o, err := v.engine.Order(id)
	require.NoError(t, err)

	_, err = v.sealer.Reveal(o.Remaining.Amount(), outsider)
	assert.Error(t, err)
	_, err = v.sealer.Reveal(o.Remaining.Amount(), buyer)
	assert.Error(t, err)

	// seller and engine hold standing grants, also after a fill rewrites
	// the stored amount
	require.NoError(t, v.fill(id, 30, 10))
	o, err = v.engine.Order(id)
	require.NoError(t, err)

	_, err = v.sealer.Reveal(o.Remaining.Amount(), seller)
	assert.NoError(t, err)
	_, err = v.sealer.Reveal(o.Remaining.Amount(), v.engine.Address())
	assert.NoError(t, err)
	_, err = v.sealer.Reveal(o.Remaining.Amount(), buyer)
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	v := newEnv(t)

	ch := make(chan book.Event, 8)
	sub := v.engine.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	id := v.create(t, 100, 10)
	require.NoError(t, v.fill(id, 40, 10))
	require.NoError(t, v.engine.CancelOrder(seller, id))

	created := <-ch
	require.NotNil(t, created.Created)
	assert.Equal(t, id, created.Created.ID)
	assert.Equal(t, seller, created.Created.Seller)
	assert.Equal(t, book.AssetSymbol("AAPL"), created.Created.Asset)
	assert.Equal(t, uint64(10), created.Created.PricePerUnit)

	filled := <-ch
	require.NotNil(t, filled.Filled)
	assert.Equal(t, id, filled.Filled.ID)
	assert.Equal(t, buyer, filled.Filled.Buyer)
	assert.Equal(t, seller, filled.Filled.Seller)

	cancelled := <-ch
	require.NotNil(t, cancelled.Cancelled)
	assert.Equal(t, id, cancelled.Cancelled.ID)
	assert.Equal(t, seller, cancelled.Cancelled.Seller)
}

func TestSequentialFillsSeeCommittedRemaining(t *testing.T) {
	v := newEnv(t)
	id := v.create(t, 100, 10)

	require.NoError(t, v.fill(id, 60, 10))
	// the second fill is evaluated against 40, not 100
	require.NoError(t, v.fill(id, 60, 10))

	assert.Equal(t, uint64(40), v.remaining(t, id))
	assert.Equal(t, uint64(60), v.tokenBalance(t, buyer))
}
