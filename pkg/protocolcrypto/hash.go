// Package protocolcrypto implements the protocol's hashing, signing, and
// on-chain message envelopes. Every hash is keccak256 over buffers
// concatenated in the order the contract's verifier expects, via
// go-ethereum's crypto primitives.
package protocolcrypto

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Keccak256 concatenates every argument and returns their keccak256 digest.
func Keccak256(parts ...[]byte) []byte {
	return ethcrypto.Keccak256(parts...)
}

// U64BE encodes v as 8 big-endian bytes.
func U64BE(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// U128BE encodes v as 16 big-endian bytes, zero-padded on the left. Panics
// if v does not fit in 128 bits or is negative; every amount and sequence
// value passed through this path is protocol-bounded well under that.
func U128BE(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		panic("protocolcrypto: value does not fit in u128")
	}
	b := make([]byte, 16)
	v.FillBytes(b)
	return b
}

// MustHex decodes a (possibly "0x"-prefixed) hex string, returning nil on
// an empty input.
func MustHex(s string) []byte {
	if s == "" {
		return nil
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("protocolcrypto: invalid hex: " + err.Error())
	}
	return b
}

// ToHex encodes b as a lowercase, unprefixed hex string.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// RevealBodyInput is the set of fields hashed into a reveal body digest.
type RevealBodyInput struct {
	DRID            string // hex
	DRBlockHeight   uint64
	ExitCode        uint8
	GasUsed         uint64
	ProxyPublicKeys []string // hex
	Reveal          []byte
}

// HashRevealBody computes the reveal body hash:
//
//	h_rb = K(drId ‖ drBlockHeight_u64be ‖ exitCode_u8 ‖ gasUsed_u64be ‖
//	         K(reveal) ‖ K(concat(K(pk_i) for pk_i in proxyPublicKeys)))
func HashRevealBody(in RevealBodyInput) []byte {
	var pkDigests []byte
	for _, pk := range in.ProxyPublicKeys {
		pkDigests = append(pkDigests, Keccak256(MustHex(pk))...)
	}

	return Keccak256(
		MustHex(in.DRID),
		U64BE(in.DRBlockHeight),
		[]byte{in.ExitCode},
		U64BE(in.GasUsed),
		Keccak256(in.Reveal),
		Keccak256(pkDigests),
	)
}

// HashRevealMessage computes the reveal message hash:
//
//	h_rm = K("reveal_data_result" ‖ drId ‖ drBlockHeight_u64be ‖ h_rb ‖
//	         chainId ‖ coreContractAddress)
func HashRevealMessage(drID string, drBlockHeight uint64, hRevealBody []byte, chainID, coreContractAddress string) []byte {
	return Keccak256(
		[]byte("reveal_data_result"),
		MustHex(drID),
		U64BE(drBlockHeight),
		hRevealBody,
		[]byte(chainID),
		[]byte(coreContractAddress),
	)
}

// Commitment computes the commitment hash:
//
//	C = K("reveal_message" ‖ h_rb ‖ pk ‖ revealProofHex ‖ stderrJoined ‖ stdoutJoined)
//
// pk is the (hex) public key; revealProofHex is hashed as its literal
// ASCII hex text. stderr/stdout are joined by direct concatenation, one
// entry after another.
func Commitment(hRevealBody []byte, pkHex string, revealProofHex string, stderr, stdout []string) []byte {
	return Keccak256(
		[]byte("reveal_message"),
		hRevealBody,
		MustHex(pkHex),
		[]byte(revealProofHex),
		[]byte(joinStrings(stderr)),
		[]byte(joinStrings(stdout)),
	)
}

func joinStrings(ss []string) string {
	out := ""
	for _, s := range ss {
		out += s
	}
	return out
}

// HashCommitMessage computes the commit message hash:
//
//	h_cm = K("commit_data_result" ‖ drId ‖ drBlockHeight_u64be ‖ C_hex ‖
//	         chainId ‖ coreContractAddress)
func HashCommitMessage(drID string, drBlockHeight uint64, commitment []byte, chainID, coreContractAddress string) []byte {
	return Keccak256(
		[]byte("commit_data_result"),
		MustHex(drID),
		U64BE(drBlockHeight),
		[]byte(ToHex(commitment)),
		[]byte(chainID),
		[]byte(coreContractAddress),
	)
}

// HashEligibilityChallenge computes the eligibility challenge hash:
//
//	h_el = K("is_executor_eligible" ‖ drId ‖ chainId ‖ coreContractAddress)
func HashEligibilityChallenge(drID, chainID, coreContractAddress string) []byte {
	return Keccak256(
		[]byte("is_executor_eligible"),
		MustHex(drID),
		[]byte(chainID),
		[]byte(coreContractAddress),
	)
}

// HashStake computes the stake message hash:
//
//	h_s = K("stake" ‖ K(memoOrEmpty) ‖ chainId ‖ coreContractAddress ‖ sequence_u128be)
func HashStake(memo []byte, chainID, coreContractAddress string, sequence *big.Int) []byte {
	return Keccak256(
		[]byte("stake"),
		Keccak256(memo),
		[]byte(chainID),
		[]byte(coreContractAddress),
		U128BE(sequence),
	)
}

// HashUnstake computes the unstake message hash:
//
//	h_u = K("unstake" ‖ amount_u128be ‖ chainId ‖ coreContractAddress ‖ sequence_u128be)
func HashUnstake(amount *big.Int, chainID, coreContractAddress string, sequence *big.Int) []byte {
	return Keccak256(
		[]byte("unstake"),
		U128BE(amount),
		[]byte(chainID),
		[]byte(coreContractAddress),
		U128BE(sequence),
	)
}

// HashWithdraw computes the withdraw message hash:
//
//	h_w = K("withdraw" ‖ amount_u128be ‖ chainId ‖ coreContractAddress ‖ sequence_u128be)
func HashWithdraw(amount *big.Int, chainID, coreContractAddress string, sequence *big.Int) []byte {
	return Keccak256(
		[]byte("withdraw"),
		U128BE(amount),
		[]byte(chainID),
		[]byte(coreContractAddress),
		U128BE(sequence),
	)
}
