// Package seal defines the confidential-amount capability that the order
// book engine computes with. An Amount is an opaque handle to an encrypted
// 64 bit unsigned quantity; all arithmetic and comparison happens inside a
// Backend without the value ever being decrypted. Decryption is a separate
// right that has to be granted per ciphertext and per principal.
package seal

import (
	"encoding/hex"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Handle identifies a ciphertext inside a backend. Handles are never
// reused: every operation that produces a new value produces a new handle.
type Handle [32]byte

// Hex returns a short prefix of the handle for logging.
func (h Handle) Hex() string {
	return hex.EncodeToString(h[:8])
}

// Amount is an opaque encrypted uint64.
type Amount Handle

// Bool is an opaque encrypted boolean, produced by comparisons.
type Bool Handle

// Ciphertext is an externally produced encryption of a uint64.
type Ciphertext []byte

// Proof attests that a Ciphertext is well formed and was produced by the
// sender it is submitted with.
type Proof []byte

var (
	// ErrNoPermission is returned by Reveal when the calling principal
	// holds neither a permanent nor a transient grant on the ciphertext.
	ErrNoPermission = errors.New("no permission on ciphertext")

	// ErrUnknownHandle is returned when an Amount or Bool does not refer
	// to a ciphertext known to the backend.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
)

// Backend is the homomorphic capability. Implementations may be an actual
// encryption scheme or a plaintext double behind opaque handles; the engine
// cannot tell the difference because it never asks for a plaintext.
//
// Grants issued with GrantTransient last until EndCall. The engine calls
// EndCall when the ledger operation that issued them commits, so a transient
// grant can never outlive the operation it was issued for.
type Backend interface {
	// Ingest verifies proof and turns an externally supplied ciphertext
	// into an Amount. The error of a failed verification is returned as
	// is, the engine does not wrap a failure into its own taxonomy.
	Ingest(ct Ciphertext, proof Proof, sender common.Address) (Amount, error)

	// Zero returns an encryption of zero.
	Zero() Amount

	Add(a, b Amount) (Amount, error)
	Sub(a, b Amount) (Amount, error)

	// Le computes a <= b without decrypting either side.
	Le(a, b Amount) (Bool, error)

	// Select returns a if cond holds, b otherwise.
	Select(cond Bool, a, b Amount) (Amount, error)

	GrantPermanent(a Amount, to common.Address) error
	GrantTransient(a Amount, to common.Address) error

	// Permitted reports whether p currently holds any grant on a.
	Permitted(a Amount, p common.Address) bool

	// Reveal decrypts a for a principal holding a grant on it. The engine
	// never calls it; it exists for off-chain holders and for tests.
	Reveal(a Amount, caller common.Address) (uint64, error)

	// EndCall expires all transient grants.
	EndCall()
}

// Stored is an Amount that has been written to persistent state. It can only
// be constructed through Store, which reissues the grantee set, so a caller
// cannot persist a ciphertext and forget to re-authorize it.
type Stored struct {
	amt Amount
}

// Store grants every grantee a permanent right on amt and wraps it for
// persistence. Grants on the previous revision of a record do not carry
// over: every write goes through here again.
func Store(b Backend, amt Amount, grantees ...common.Address) (Stored, error) {
	for _, g := range grantees {
		if err := b.GrantPermanent(amt, g); err != nil {
			return Stored{}, err
		}
	}
	return Stored{amt: amt}, nil
}

// Amount returns the wrapped handle.
func (s Stored) Amount() Amount {
	return s.amt
}

// EncodeRLP encodes the handle. A Stored decoded back from the trie refers
// to a ciphertext whose grants were issued when it was written.
func (s Stored) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, s.amt)
}

func (s *Stored) DecodeRLP(st *rlp.Stream) error {
	var a Amount
	if err := st.Decode(&a); err != nil {
		return err
	}
	s.amt = a
	return nil
}
