package book

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	lru "github.com/hashicorp/golang-lru"
)

const orderCacheSize = 1024

// One byte path prefix per record family in the state trie.
var (
	orderPrefix     = []byte{0}
	sellerIdxPrefix = []byte{1}
	nextIDPrefix    = []byte{2}
	fundsPrefix     = []byte{3}
)

func orderPath(id OrderID) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(id))
	return append(orderPrefix, b...)
}

func sellerIdxPath(addr common.Address) []byte {
	return append(sellerIdxPrefix, addr[:]...)
}

func fundsPath(addr common.Address) []byte {
	return append(fundsPrefix, addr[:]...)
}

// State is the engine's persisted record set: the order arena keyed by
// dense id, the append-only seller index, the id counter and the clear
// payment ledger. Everything lives in one trie so a single root commits the
// whole engine.
type State struct {
	db     *trie.Database
	diskDB ethdb.Database

	mu     sync.Mutex
	trie   *trie.Trie
	orders *lru.Cache
}

func newState(t *trie.Trie, db *trie.Database, diskDB ethdb.Database) *State {
	cache, err := lru.New(orderCacheSize)
	if err != nil {
		panic(err)
	}

	return &State{
		db:     db,
		diskDB: diskDB,
		trie:   t,
		orders: cache,
	}
}

// NewState creates an empty state on top of diskDB.
func NewState(diskDB ethdb.Database) *State {
	db := trie.NewDatabase(diskDB)
	t, err := trie.New(common.Hash{}, db)
	if err != nil {
		panic(err)
	}

	return newState(t, db, diskDB)
}

// OpenState opens a previously committed state at root.
func OpenState(diskDB ethdb.Database, root common.Hash) (*State, error) {
	db := trie.NewDatabase(diskDB)
	t, err := trie.New(root, db)
	if err != nil {
		return nil, err
	}

	return newState(t, db, diskDB), nil
}

// NextOrderID assigns the next order id. The first id is 1, zero is
// reserved as "not found". Ids are never reused.
func (s *State) NextOrderID() OrderID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last uint64
	b := s.trie.Get(nextIDPrefix)
	if len(b) > 0 {
		err := rlp.DecodeBytes(b, &last)
		if err != nil {
			panic(err)
		}
	}

	id := last + 1
	b, err := rlp.EncodeToBytes(id)
	if err != nil {
		panic(err)
	}
	s.trie.Update(nextIDPrefix, b)
	return OrderID(id)
}

// Order loads an order record. The zero id is never present.
func (s *State) Order(id OrderID) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.orders.Get(id); ok {
		return v.(Order), true
	}

	b := s.trie.Get(orderPath(id))
	if len(b) == 0 {
		return Order{}, false
	}

	var o Order
	err := rlp.DecodeBytes(b, &o)
	if err != nil {
		panic(err)
	}

	s.orders.Add(id, o)
	return o, true
}

func (s *State) UpdateOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := rlp.EncodeToBytes(o)
	if err != nil {
		panic(err)
	}

	s.trie.Update(orderPath(o.ID), b)
	s.orders.Add(o.ID, o)
}

// SellerOrders returns every order id the seller ever created, in creation
// order. Cancelled and expired ids stay listed.
func (s *State) SellerOrders(addr common.Address) []OrderID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sellerOrders(addr)
}

func (s *State) sellerOrders(addr common.Address) []OrderID {
	b := s.trie.Get(sellerIdxPath(addr))
	if len(b) == 0 {
		return nil
	}

	var ids []OrderID
	err := rlp.DecodeBytes(b, &ids)
	if err != nil {
		panic(err)
	}

	return ids
}

func (s *State) AddSellerOrder(addr common.Address, id OrderID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append(s.sellerOrders(addr), id)
	b, err := rlp.EncodeToBytes(ids)
	if err != nil {
		panic(err)
	}

	s.trie.Update(sellerIdxPath(addr), b)
}

// Funds returns the clear balance withdrawable by addr. Fill settlement
// credits the seller's price here and the buyer's refund, if any.
func (s *State) Funds(addr common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.funds(addr)
}

func (s *State) funds(addr common.Address) uint64 {
	b := s.trie.Get(fundsPath(addr))
	if len(b) == 0 {
		return 0
	}

	var v uint64
	err := rlp.DecodeBytes(b, &v)
	if err != nil {
		panic(err)
	}

	return v
}

func (s *State) updateFunds(addr common.Address, v uint64) {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	s.trie.Update(fundsPath(addr), b)
}

func (s *State) Credit(addr common.Address, quant uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateFunds(addr, s.funds(addr)+quant)
}

func (s *State) Debit(addr common.Address, quant uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	have := s.funds(addr)
	if have < quant {
		return ErrInsufficientFunds
	}

	s.updateFunds(addr, have-quant)
	return nil
}

// Hash returns the state root over all records.
func (s *State) Hash() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.trie.Hash()
}

// Commit writes the trie to the backing database and returns the committed
// root, which OpenState accepts.
func (s *State) Commit() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.trie.Commit(nil)
	if err != nil {
		return common.Hash{}, err
	}

	err = s.db.Commit(root, false)
	if err != nil {
		return common.Hash{}, err
	}

	return root, nil
}
