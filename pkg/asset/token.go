package asset

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/helinwang/log15"

	"github.com/SarahWill6/StockRWA/pkg/book"
	"github.com/SarahWill6/StockRWA/pkg/seal"
)

var (
	ErrNoBalance    = errors.New("holder has no confidential balance")
	ErrNotPermitted = errors.New("caller lacks permission on the transfer amount")
)

// Token is an asset token with confidential per-holder balances. Its
// authority mints supply and maintains the reference price of the
// underlying asset; neither operation is open to anyone else.
type Token struct {
	addr      common.Address
	symbol    book.AssetSymbol
	authority common.Address
	sealer    seal.Backend

	mu       sync.Mutex
	price    uint64
	balances map[common.Address]seal.Stored
}

func NewToken(addr common.Address, symbol book.AssetSymbol, authority common.Address, sealer seal.Backend) *Token {
	return &Token{
		addr:      addr,
		symbol:    symbol,
		authority: authority,
		sealer:    sealer,
		balances:  make(map[common.Address]seal.Stored),
	}
}

func (t *Token) Address() common.Address {
	return t.addr
}

func (t *Token) Symbol() book.AssetSymbol {
	return t.symbol
}

// SetPrice updates the authority's reference price for the underlying
// asset. The price carried by individual sell orders is unaffected.
func (t *Token) SetPrice(caller common.Address, price uint64) error {
	if caller != t.authority {
		return ErrNotAuthority
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.price = price
	return nil
}

func (t *Token) Price() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.price
}

// Mint ingests an encrypted supply and adds it to the recipient's balance.
// Only the authority mints.
func (t *Token) Mint(caller, to common.Address, ct seal.Ciphertext, proof seal.Proof) error {
	if caller != t.authority {
		return ErrNotAuthority
	}

	amt, err := t.sealer.Ingest(ct, proof, caller)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	balance := amt
	if cur, ok := t.balances[to]; ok {
		balance, err = t.sealer.Add(cur.Amount(), amt)
		if err != nil {
			return err
		}
	}

	stored, err := seal.Store(t.sealer, balance, t.addr, to)
	if err != nil {
		return err
	}
	t.balances[to] = stored
	return nil
}

// BalanceOf returns the handle of the holder's balance. The holder carries
// a decryption grant on it, everybody else sees an opaque handle.
func (t *Token) BalanceOf(holder common.Address) (seal.Amount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.balances[holder]
	if !ok {
		return seal.Amount{}, false
	}
	return s.Amount(), true
}

// ConfidentialTransferFrom moves amt from one holder to another. The token
// must have been granted a right on amt for the current call, and a sender
// with no balance record at all is rejected. A transfer exceeding the
// sender's balance moves nothing: deciding to fail instead would require a
// decryption the token is not entitled to.
func (t *Token) ConfidentialTransferFrom(caller, from, to common.Address, amt seal.Amount) error {
	if !t.sealer.Permitted(amt, t.addr) {
		log.Warn("transfer amount not granted to token", "token", t.symbol, "caller", caller.Hex())
		return ErrNotPermitted
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fromBal, ok := t.balances[from]
	if !ok {
		return ErrNoBalance
	}

	canMove, err := t.sealer.Le(amt, fromBal.Amount())
	if err != nil {
		return err
	}
	moved, err := t.sealer.Select(canMove, amt, t.sealer.Zero())
	if err != nil {
		return err
	}

	newFrom, err := t.sealer.Sub(fromBal.Amount(), moved)
	if err != nil {
		return err
	}

	newTo := moved
	if cur, ok := t.balances[to]; ok {
		newTo, err = t.sealer.Add(cur.Amount(), moved)
		if err != nil {
			return err
		}
	}

	storedFrom, err := seal.Store(t.sealer, newFrom, t.addr, from)
	if err != nil {
		return err
	}
	storedTo, err := seal.Store(t.sealer, newTo, t.addr, to)
	if err != nil {
		return err
	}

	t.balances[from] = storedFrom
	t.balances[to] = storedTo
	return nil
}
