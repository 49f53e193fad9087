package protocolcrypto

import (
	"encoding/base64"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Prove computes the protocol's VRF-style proof: an RFC 6979
// deterministic secp256k1 signature over message, used both as the
// selection token and as the message signature.
func Prove(privateKeyBytes []byte, message []byte) ([]byte, error) {
	priv, err := ethcrypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("protocolcrypto: invalid private key: %w", err)
	}
	sig, err := ethcrypto.Sign(message, priv)
	if err != nil {
		return nil, fmt.Errorf("protocolcrypto: signing failed: %w", err)
	}
	return sig, nil
}

// Verify checks that proof is a valid secp256k1 signature over message by
// the holder of publicKeyBytes (33-byte compressed form).
func Verify(publicKeyBytes []byte, message, proof []byte) bool {
	if len(proof) < 64 {
		return false
	}
	// crypto.Ecrecover works against the 65-byte [R||S||V] signature and
	// recovers the uncompressed public key; compare against the expected
	// compressed key via re-derivation.
	recovered, err := ethcrypto.SigToPub(message, proof)
	if err != nil {
		return false
	}
	compressed := ethcrypto.CompressPubkey(recovered)
	return ToHex(compressed) == ToHex(publicKeyBytes)
}

// EligibilityPayload builds the base64 payload submitted when using the
// chain's query-based eligibility path:
//
//	base64(identityId ":" drId ":" signatureHex)
func EligibilityPayload(identityID, drID, signatureHex string) string {
	raw := fmt.Sprintf("%s:%s:%s", identityID, drID, signatureHex)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
