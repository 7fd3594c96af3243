// Package local implements the seal.Backend capability on plaintexts kept
// behind opaque handles. It exists for tests and for single-node
// deployments that do not run a real encryption scheme; the engine code is
// identical either way.
package local

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/SarahWill6/StockRWA/pkg/seal"
)

// ErrBadProof is returned by Ingest when the proof does not bind the
// ciphertext to the submitting sender.
var ErrBadProof = errors.New("ciphertext proof verification failed")

// Backend holds every ciphertext it has ever produced. Handles are derived
// from a counter, so two backends fed the same operations in the same order
// produce the same handles.
type Backend struct {
	mu        sync.Mutex
	ctr       uint64
	zero      seal.Amount
	amounts   map[seal.Amount]uint64
	bools     map[seal.Bool]bool
	perms     map[seal.Amount]map[common.Address]bool
	transient map[seal.Amount]map[common.Address]bool
}

func NewBackend() *Backend {
	b := &Backend{
		amounts:   make(map[seal.Amount]uint64),
		bools:     make(map[seal.Bool]bool),
		perms:     make(map[seal.Amount]map[common.Address]bool),
		transient: make(map[seal.Amount]map[common.Address]bool),
	}
	b.zero = b.newAmount(0)
	return b
}

// Encrypt produces a ciphertext and proof that Ingest accepts for sender.
// Clients run this off-chain before submitting an order or a fill.
func Encrypt(v uint64, sender common.Address) (seal.Ciphertext, seal.Proof) {
	ct := make([]byte, 8)
	binary.BigEndian.PutUint64(ct, v)
	p := proofFor(ct, sender)
	return ct, p[:]
}

func proofFor(ct []byte, sender common.Address) [32]byte {
	b := make([]byte, 0, len(ct)+len(sender))
	b = append(b, ct...)
	b = append(b, sender[:]...)
	return sha3.Sum256(b)
}

func (b *Backend) newHandle() seal.Handle {
	b.ctr++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], b.ctr)
	return seal.Handle(sha3.Sum256(buf[:]))
}

func (b *Backend) newAmount(v uint64) seal.Amount {
	h := seal.Amount(b.newHandle())
	b.amounts[h] = v
	return h
}

func (b *Backend) value(a seal.Amount) (uint64, error) {
	v, ok := b.amounts[a]
	if !ok {
		return 0, seal.ErrUnknownHandle
	}
	return v, nil
}

func (b *Backend) Ingest(ct seal.Ciphertext, proof seal.Proof, sender common.Address) (seal.Amount, error) {
	if len(ct) != 8 {
		return seal.Amount{}, ErrBadProof
	}
	want := proofFor(ct, sender)
	if !bytes.Equal(proof, want[:]) {
		return seal.Amount{}, ErrBadProof
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newAmount(binary.BigEndian.Uint64(ct)), nil
}

func (b *Backend) Zero() seal.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zero
}

func (b *Backend) Add(x, y seal.Amount) (seal.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	xv, err := b.value(x)
	if err != nil {
		return seal.Amount{}, err
	}
	yv, err := b.value(y)
	if err != nil {
		return seal.Amount{}, err
	}
	return b.newAmount(xv + yv), nil
}

// Sub wraps around like uint64 arithmetic does. Callers that need a floor
// at zero compare and select first, the engine does exactly that.
func (b *Backend) Sub(x, y seal.Amount) (seal.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	xv, err := b.value(x)
	if err != nil {
		return seal.Amount{}, err
	}
	yv, err := b.value(y)
	if err != nil {
		return seal.Amount{}, err
	}
	return b.newAmount(xv - yv), nil
}

func (b *Backend) Le(x, y seal.Amount) (seal.Bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	xv, err := b.value(x)
	if err != nil {
		return seal.Bool{}, err
	}
	yv, err := b.value(y)
	if err != nil {
		return seal.Bool{}, err
	}

	h := seal.Bool(b.newHandle())
	b.bools[h] = xv <= yv
	return h, nil
}

func (b *Backend) Select(cond seal.Bool, x, y seal.Amount) (seal.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.bools[cond]
	if !ok {
		return seal.Amount{}, seal.ErrUnknownHandle
	}
	xv, err := b.value(x)
	if err != nil {
		return seal.Amount{}, err
	}
	yv, err := b.value(y)
	if err != nil {
		return seal.Amount{}, err
	}

	if c {
		return b.newAmount(xv), nil
	}
	return b.newAmount(yv), nil
}

func (b *Backend) GrantPermanent(a seal.Amount, to common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.value(a); err != nil {
		return err
	}
	if b.perms[a] == nil {
		b.perms[a] = make(map[common.Address]bool)
	}
	b.perms[a][to] = true
	return nil
}

func (b *Backend) GrantTransient(a seal.Amount, to common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.value(a); err != nil {
		return err
	}
	if b.transient[a] == nil {
		b.transient[a] = make(map[common.Address]bool)
	}
	b.transient[a][to] = true
	return nil
}

func (b *Backend) Permitted(a seal.Amount, p common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perms[a][p] || b.transient[a][p]
}

func (b *Backend) Reveal(a seal.Amount, caller common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := b.value(a)
	if err != nil {
		return 0, err
	}
	if !b.perms[a][caller] && !b.transient[a][caller] {
		return 0, seal.ErrNoPermission
	}
	return v, nil
}

func (b *Backend) EndCall() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transient = make(map[seal.Amount]map[common.Address]bool)
}
