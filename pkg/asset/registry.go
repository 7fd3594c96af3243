// Package asset implements the collaborators the order book engine settles
// against: the symbol registry, the confidential asset token and the
// factory that lists new assets under a controlling authority.
package asset

import (
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SarahWill6/StockRWA/pkg/book"
)

var (
	ErrSymbolExists = errors.New("asset symbol already registered")
	ErrNotAuthority = errors.New("caller is not the asset authority")
)

// Registry maps asset symbols to token contracts. Symbols are case
// insensitive: "aapl" and "AAPL" are the same listing.
type Registry struct {
	mu       sync.Mutex
	bySymbol map[book.AssetSymbol]common.Address
	byAddr   map[common.Address]*Token
}

func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[book.AssetSymbol]common.Address),
		byAddr:   make(map[common.Address]*Token),
	}
}

func canonical(symbol book.AssetSymbol) book.AssetSymbol {
	return book.AssetSymbol(strings.ToUpper(string(symbol)))
}

// Register lists a token under its symbol. Re-registering a symbol fails,
// delistings do not exist.
func (r *Registry) Register(symbol book.AssetSymbol, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := canonical(symbol)
	if _, ok := r.bySymbol[key]; ok {
		return ErrSymbolExists
	}

	r.bySymbol[key] = t.Address()
	r.byAddr[t.Address()] = t
	return nil
}

// Resolve implements book.AssetRegistry.
func (r *Registry) Resolve(symbol book.AssetSymbol) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr, ok := r.bySymbol[canonical(symbol)]
	return addr, ok
}

// TokenAt implements book.TokenDirectory.
func (r *Registry) TokenAt(addr common.Address) (book.AssetToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	return t, true
}

// Token returns the concrete token listed under symbol, for callers that
// need more than the transfer surface.
func (r *Registry) Token(symbol book.AssetSymbol) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr, ok := r.bySymbol[canonical(symbol)]
	if !ok {
		return nil, false
	}
	return r.byAddr[addr], true
}
