package chainclient

import (
	"errors"
	"strings"
)

// BroadcastError wraps a classified broadcast failure. The
// dispatcher type-switches on these via errors.As to decide retry policy.
type BroadcastError struct {
	Kind    BroadcastErrorKind
	TxHash  string
	Message string
}

func (e *BroadcastError) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// BroadcastErrorKind enumerates the broadcast failure classes.
type BroadcastErrorKind int

const (
	KindGeneric BroadcastErrorKind = iota
	KindInsufficientFunds
	KindSequenceMismatch
	KindTimeout
	KindMempool
	KindAlreadyCommitted
	KindAlreadyRevealed
	KindRevealStarted
	KindRevealMismatch
	KindDataRequestExpired
	KindDataRequestNotFound
)

func (k BroadcastErrorKind) String() string {
	switch k {
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindSequenceMismatch:
		return "SequenceMismatch"
	case KindTimeout:
		return "Timeout"
	case KindMempool:
		return "Mempool"
	case KindAlreadyCommitted:
		return "AlreadyCommitted"
	case KindAlreadyRevealed:
		return "AlreadyRevealed"
	case KindRevealStarted:
		return "RevealStarted"
	case KindRevealMismatch:
		return "RevealMismatch"
	case KindDataRequestExpired:
		return "DataRequestExpired"
	case KindDataRequestNotFound:
		return "DataRequestNotFound"
	default:
		return "Generic"
	}
}

// Retryable reports whether the dispatcher's bounded-retry policy applies
// to this kind. AlreadyCommitted/AlreadyRevealed/RevealStarted/
// DataRequestExpired/DataRequestNotFound/RevealMismatch are terminal
// protocol outcomes; everything else is retried.
func (k BroadcastErrorKind) Retryable() bool {
	switch k {
	case KindAlreadyCommitted, KindAlreadyRevealed, KindRevealStarted,
		KindDataRequestExpired, KindDataRequestNotFound, KindRevealMismatch:
		return false
	default:
		return true
	}
}

// classifyBroadcastError maps a raw chain/RPC error message to a
// BroadcastErrorKind by substring, since the chain surfaces its ABCI
// error codes as strings.
func classifyBroadcastError(txHash string, err error) *BroadcastError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "insufficient funds"), strings.Contains(lower, "insufficient fee"):
		return &BroadcastError{Kind: KindInsufficientFunds, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "incorrect account sequence"), strings.Contains(lower, "sequence mismatch"):
		return &BroadcastError{Kind: KindSequenceMismatch, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timeout"):
		return &BroadcastError{Kind: KindTimeout, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "mempool is full"), strings.Contains(lower, "mempool full"):
		return &BroadcastError{Kind: KindMempool, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "already committed"):
		return &BroadcastError{Kind: KindAlreadyCommitted, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "already revealed"):
		return &BroadcastError{Kind: KindAlreadyRevealed, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "reveal started"), strings.Contains(lower, "reveal already started"):
		return &BroadcastError{Kind: KindRevealStarted, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "reveal mismatch"), strings.Contains(lower, "commitment mismatch"):
		return &BroadcastError{Kind: KindRevealMismatch, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "data request expired"), strings.Contains(lower, "dr expired"):
		return &BroadcastError{Kind: KindDataRequestExpired, TxHash: txHash, Message: msg}
	case strings.Contains(lower, "data request not found"), strings.Contains(lower, "dr not found"):
		return &BroadcastError{Kind: KindDataRequestNotFound, TxHash: txHash, Message: msg}
	default:
		return &BroadcastError{Kind: KindGeneric, TxHash: txHash, Message: msg}
	}
}

// AsBroadcastError unwraps err to a *BroadcastError if one is present in
// its chain.
func AsBroadcastError(err error) (*BroadcastError, bool) {
	var be *BroadcastError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// ErrNotFound is returned by single-item queries (QueryDR, QueryOracleProgram)
// when the chain reports absence rather than an error.
var ErrNotFound = errors.New("chainclient: not found")
