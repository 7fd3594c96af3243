package asset

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/SarahWill6/StockRWA/pkg/book"
	"github.com/SarahWill6/StockRWA/pkg/seal"
)

// Factory lists new assets. One authority controls every asset it creates:
// it mints the supply and maintains the reference price.
type Factory struct {
	registry  *Registry
	sealer    seal.Backend
	authority common.Address
}

func NewFactory(registry *Registry, sealer seal.Backend, authority common.Address) *Factory {
	return &Factory{
		registry:  registry,
		sealer:    sealer,
		authority: authority,
	}
}

// TokenAddress derives the deterministic contract address of the token for
// a symbol.
func TokenAddress(symbol book.AssetSymbol) common.Address {
	h := sha3.Sum256([]byte("stockrwa/token/" + strings.ToUpper(string(symbol))))
	return common.BytesToAddress(h[12:])
}

// CreateAsset instantiates the token for symbol, sets its initial reference
// price and registers it. Only the authority lists assets.
func (f *Factory) CreateAsset(caller common.Address, symbol book.AssetSymbol, price uint64) (*Token, error) {
	if caller != f.authority {
		return nil, ErrNotAuthority
	}

	t := NewToken(TokenAddress(symbol), canonical(symbol), f.authority, f.sealer)
	if err := t.SetPrice(caller, price); err != nil {
		return nil, err
	}
	if err := f.registry.Register(symbol, t); err != nil {
		return nil, err
	}
	return t, nil
}
