package chainclient

import (
	"encoding/hex"
	"math/big"

	sdkmath "cosmossdk.io/math"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/codec"
)

func sdkIntFromBigInt(n *big.Int) sdkmath.Int {
	if n == nil {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(n)
}

func newProtoCodec(registry codectypes.InterfaceRegistry) *codec.ProtoCodec {
	return codec.NewProtoCodec(registry)
}

func hexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func parseBigIntOrZero(s string) *big.Int {
	if s == "" {
		return zeroBigInt()
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return zeroBigInt()
	}
	return n
}

func zeroBigInt() *big.Int { return big.NewInt(0) }

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// mustHexOrRaw decodes s as hex if it looks like hex, otherwise returns it
// as raw bytes; the contract encodes byte fields as hex strings but this
// keeps the DR projection tolerant of either.
func mustHexOrRaw(s string) []byte {
	if s == "" {
		return nil
	}
	if b, err := hex.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
