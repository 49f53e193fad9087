// Package drtypes holds the data model shared by every stage of the
// per-data-request lifecycle: the on-chain DataRequest projection, the
// per-(DR, identity) work item, and the execution result it produces.
package drtypes

import (
	"math/big"
	"time"
)

// DRStatus mirrors the on-chain status of a DataRequest.
type DRStatus string

const (
	StatusCommitting DRStatus = "committing"
	StatusRevealing  DRStatus = "revealing"
	StatusTallying   DRStatus = "tallying"
)

// DataRequest is the authoritative, chain-sourced record of a single DR.
// The pool owns these; tasks hold read-only references by ID. Updates
// replace the record wholesale rather than mutating it in place.
type DataRequest struct {
	ID                string
	Version           string
	ExecProgramID     string
	ExecInputs        []byte
	ExecGasLimit      uint64
	TallyProgramID    string
	TallyInputs       []byte
	TallyGasLimit     uint64
	ReplicationFactor uint16
	ConsensusFilter   []byte
	GasPrice          *big.Int
	PostedGasPrice    *big.Int
	Memo              []byte
	PaybackAddress    []byte
	SedaPayload       []byte
	Height            uint64
	Status            DRStatus
	CommitsLength     uint32
	LastUpdated       time.Time
}

// Clone returns a deep-enough copy for safe cross-goroutine handoff; byte
// slices and the big.Int fields are not mutated in place elsewhere so a
// shallow field copy plus big.Int re-wrap is sufficient.
func (d *DataRequest) Clone() *DataRequest {
	if d == nil {
		return nil
	}
	cp := *d
	if d.GasPrice != nil {
		cp.GasPrice = new(big.Int).Set(d.GasPrice)
	}
	if d.PostedGasPrice != nil {
		cp.PostedGasPrice = new(big.Int).Set(d.PostedGasPrice)
	}
	return &cp
}

// TaskStatus is the per-(DR, identity) state machine's status:
// EligibleForExecution -> Executed -> Committed -> ReadyToBeRevealed ->
// Revealed, with Failed reachable from any state.
type TaskStatus string

const (
	StatusEligibleForExecution TaskStatus = "EligibleForExecution"
	StatusExecuted             TaskStatus = "Executed"
	StatusCommitted            TaskStatus = "Committed"
	StatusReadyToBeRevealed    TaskStatus = "ReadyToBeRevealed"
	StatusRevealed             TaskStatus = "Revealed"
	StatusFailed               TaskStatus = "Failed"
)

// IdentityDataRequest is a per-(drId, identityId) work item. Owned by the
// DRPool; created on eligibility, destroyed on terminal status or when the
// parent DR is removed.
type IdentityDataRequest struct {
	DRID              string
	IdentityID        string
	Status            TaskStatus
	EligibilityHeight uint64
	ExecutionResult   *ExecutionResult
	Retries           int
}

// RevealBody is the structured payload of a reveal transaction.
type RevealBody struct {
	DRID            string
	DRBlockHeight   uint64
	ExitCode        uint8
	GasUsed         uint64
	ProxyPublicKeys []string
	Reveal          []byte
}

// ExecutionResult is the output of running a DR's oracle program. Produced
// once per DRTask and never mutated afterward.
type ExecutionResult struct {
	Stdout     []string
	Stderr     []string
	RevealBody RevealBody
}

// Staker is the chain's view of a registered identity: its declared
// secp256k1 public key and its currently staked token balance.
type Staker struct {
	PublicKey               string
	TokensStaked            *big.Int
	TokensPendingWithdrawal *big.Int
	Memo                    string
}

// DRConfig mirrors the protocol's governance parameters.
type DRConfig struct {
	CommitTimeoutBlocks uint64
	RevealTimeoutBlocks uint64
	MaxExecInputBytes   uint64
	MaxTallyInputBytes  uint64
	BackupDelayInBlocks uint64
}

// StakingConfig mirrors the chain's staking governance parameters.
type StakingConfig struct {
	MinimumStake     *big.Int
	AllowlistEnabled bool
}

// DRStatusPage is one page of a queryDRStatusList listing.
type DRStatusPage struct {
	DRs        []*DataRequest
	Total      int
	IsPaused   bool
	HasMore    bool
	NextCursor string
}

// Block is the subset of on-chain block data the core needs: the list of
// transaction hashes included, for the tx-inclusion block-search path.
type Block struct {
	Height uint64
	TxIDs  []string
}

// ResultTooLargeExitCode (RESULT_TOO_LARGE) is the reserved exit code substituted when a reveal
// exceeds the per-DR size bound.
const ResultTooLargeExitCode uint8 = 255

// MaxRevealBytes returns floor(24000 / replicationFactor), the hard cap on
// a single reveal body's size.
func MaxRevealBytes(replicationFactor uint16) int {
	if replicationFactor == 0 {
		replicationFactor = 1
	}
	return 24000 / int(replicationFactor)
}
