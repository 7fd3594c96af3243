package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SarahWill6/StockRWA/pkg/seal"
	"github.com/SarahWill6/StockRWA/pkg/seal/local"
)

func storedAmount(t *testing.T, b *local.Backend, v uint64, grantees ...common.Address) seal.Stored {
	sender := common.BytesToAddress([]byte{9})
	ct, proof := local.Encrypt(v, sender)
	amt, err := b.Ingest(ct, proof, sender)
	require.NoError(t, err)

	s, err := seal.Store(b, amt, grantees...)
	require.NoError(t, err)
	return s
}

func TestNextOrderID(t *testing.T) {
	s := NewState(ethdb.NewMemDatabase())

	assert.Equal(t, OrderID(1), s.NextOrderID())
	assert.Equal(t, OrderID(2), s.NextOrderID())
	assert.Equal(t, OrderID(3), s.NextOrderID())
}

func TestOrderRoundtrip(t *testing.T) {
	backend := local.NewBackend()
	s := NewState(ethdb.NewMemDatabase())
	seller := common.BytesToAddress([]byte{1})

	o := Order{
		ID:           s.NextOrderID(),
		Seller:       seller,
		Asset:        "AAPL",
		Remaining:    storedAmount(t, backend, 1000, seller),
		PricePerUnit: 150,
		Active:       true,
		CreatedAt:    1700000000,
	}
	s.UpdateOrder(o)

	got, ok := s.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, o, got)

	_, ok = s.Order(OrderID(42))
	assert.False(t, ok)
}

func TestOrderSurvivesCacheEviction(t *testing.T) {
	backend := local.NewBackend()
	s := NewState(ethdb.NewMemDatabase())
	seller := common.BytesToAddress([]byte{1})

	o := Order{
		ID:        s.NextOrderID(),
		Seller:    seller,
		Asset:     "MSFT",
		Remaining: storedAmount(t, backend, 10, seller),
		Active:    true,
	}
	s.UpdateOrder(o)
	s.orders.Purge()

	got, ok := s.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, o, got)
}

func TestSellerIndexAppendOnly(t *testing.T) {
	s := NewState(ethdb.NewMemDatabase())
	seller := common.BytesToAddress([]byte{1})
	other := common.BytesToAddress([]byte{2})

	assert.Nil(t, s.SellerOrders(seller))

	s.AddSellerOrder(seller, 1)
	s.AddSellerOrder(seller, 3)
	s.AddSellerOrder(other, 2)

	assert.Equal(t, []OrderID{1, 3}, s.SellerOrders(seller))
	assert.Equal(t, []OrderID{2}, s.SellerOrders(other))
}

func TestFunds(t *testing.T) {
	s := NewState(ethdb.NewMemDatabase())
	addr := common.BytesToAddress([]byte{1})

	assert.Equal(t, uint64(0), s.Funds(addr))

	s.Credit(addr, 10)
	s.Credit(addr, 5)
	assert.Equal(t, uint64(15), s.Funds(addr))

	require.NoError(t, s.Debit(addr, 12))
	assert.Equal(t, uint64(3), s.Funds(addr))

	assert.Equal(t, ErrInsufficientFunds, s.Debit(addr, 4))
	assert.Equal(t, uint64(3), s.Funds(addr))
}

func TestCommitAndOpen(t *testing.T) {
	backend := local.NewBackend()
	db := ethdb.NewMemDatabase()
	s := NewState(db)
	seller := common.BytesToAddress([]byte{1})

	o := Order{
		ID:        s.NextOrderID(),
		Seller:    seller,
		Asset:     "AAPL",
		Remaining: storedAmount(t, backend, 1000, seller),
		Active:    true,
		CreatedAt: 1700000000,
	}
	s.UpdateOrder(o)
	s.AddSellerOrder(seller, o.ID)
	s.Credit(seller, 150)

	root, err := s.Commit()
	require.NoError(t, err)

	reopened, err := OpenState(db, root)
	require.NoError(t, err)

	got, ok := reopened.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, o, got)
	assert.Equal(t, []OrderID{o.ID}, reopened.SellerOrders(seller))
	assert.Equal(t, uint64(150), reopened.Funds(seller))
	assert.Equal(t, OrderID(2), reopened.NextOrderID())
}
