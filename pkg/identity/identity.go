// Package identity derives and owns the node's secp256k1 identities and
// Cosmos sub-accounts from a single BIP-39 mnemonic, and runs the
// readiness-check, sub-account funding, and reward-withdrawal loops.
package identity

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	bip39 "github.com/cosmos/go-bip39"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CoinType is the SLIP-44-style coin type used in the protocol's
// derivation path, m/44'/83696865'/0'/0/i.
const CoinType = 83696865

// Identity is a single secp256k1 keypair, immutable for the process
// lifetime once loaded.
type Identity struct {
	Index      int
	PrivateKey []byte // 32-byte scalar
	PublicKey  []byte // 33-byte compressed
	ID         string // hex-encoded compressed public key
}

// DerivePath returns the BIP-32 path for identity index i.
func DerivePath(i int) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", CoinType, i)
}

// SubAccountDerivePath returns the BIP-32 path for sub-account index i,
// under the chain-specific Cosmos coin type (118) rather than the
// protocol's own identity coin type, since sub-accounts are plain Cosmos
// addresses used only to parallelize submission.
func SubAccountDerivePath(i int) string {
	return fmt.Sprintf("m/44'/118'/0'/0/%d", i)
}

// DeriveIdentities derives N identities from mnemonic along
// m/44'/83696865'/0'/0/i for i in [0, n).
func DeriveIdentities(mnemonic string, n int) ([]*Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("identity: invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("identity: deriving seed: %w", err)
	}

	out := make([]*Identity, 0, n)
	for i := 0; i < n; i++ {
		priv, err := deriveSecp256k1(seed, DerivePath(i))
		if err != nil {
			return nil, fmt.Errorf("identity: deriving index %d: %w", i, err)
		}
		pub := ethcrypto.CompressPubkey(&priv.PublicKey)
		out = append(out, &Identity{
			Index:      i,
			PrivateKey: ethcrypto.FromECDSA(priv),
			PublicKey:  pub,
			ID:         fmt.Sprintf("%x", pub),
		})
	}
	return out, nil
}

func deriveSecp256k1(seed []byte, path string) (*ecdsa.PrivateKey, error) {
	master, ch := hd.ComputeMastersFromSeed(seed)
	derived, err := hd.DerivePrivateKeyForPath(master, ch, path)
	if err != nil {
		return nil, err
	}
	priv := secp256k1.PrivKey{Key: derived}
	ecdsaPriv, err := ethcrypto.ToECDSA(priv.Key)
	if err != nil {
		return nil, err
	}
	return ecdsaPriv, nil
}

// Manager owns the set of identities and sub-accounts loaded at startup and
// never mutated afterward, plus the mutable readiness/enabled state the
// eligibility selector reads.
type Manager struct {
	mu         sync.RWMutex
	identities []*Identity
	enabled    map[string]bool // identityID -> enabled (tokensStaked >= minimumStake)
}

// NewManager wraps a fixed identity set.
func NewManager(identities []*Identity) *Manager {
	enabled := make(map[string]bool, len(identities))
	for _, id := range identities {
		enabled[id.ID] = false
	}
	return &Manager{identities: identities, enabled: enabled}
}

// Identities returns the immutable identity list.
func (m *Manager) Identities() []*Identity {
	return m.identities
}

// ByID looks up an identity by its hex ID.
func (m *Manager) ByID(id string) (*Identity, bool) {
	for _, i := range m.identities {
		if i.ID == id {
			return i, true
		}
	}
	return nil, false
}

// SetEnabled records whether identityID currently meets the staking
// config's minimumStake threshold.
func (m *Manager) SetEnabled(identityID string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[identityID] = enabled
}

// IsEnabled reports whether identityID is currently selectable for
// eligibility checks.
func (m *Manager) IsEnabled(identityID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[identityID]
}

// EnabledIdentities returns the subset of identities currently enabled.
func (m *Manager) EnabledIdentities() []*Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Identity, 0, len(m.identities))
	for _, i := range m.identities {
		if m.enabled[i.ID] {
			out = append(out, i)
		}
	}
	return out
}
