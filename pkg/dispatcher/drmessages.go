package dispatcher

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
)

// CommitParams bundles the fields pkg/drtask needs to submit a
// commit_data_result transaction.
type CommitParams struct {
	DRID          string
	Commitment    []byte
	Proof         []byte
	PublicKey     string // identity public key, not the Cosmos signer address
	SignerAddress string
	SignerIndex   int
	GasOption     string
}

// SubmitCommit queues a commit_data_result message as LOW priority and
// blocks for the on-chain outcome.
func (d *Dispatcher) SubmitCommit(ctx context.Context, p CommitParams) (*chainclient.TxResult, error) {
	msg := protocolcrypto.CommitDataResultMsg{
		DRID:       p.DRID,
		Commitment: protocolcrypto.ToHex(p.Commitment),
		Proof:      protocolcrypto.ToHex(p.Proof),
		PublicKey:  p.PublicKey,
	}
	payload, err := marshalEnvelope("commit_data_result", msg)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: marshaling commit message: %w", err)
	}
	executeMsg := d.chain.WrapContractExecute(p.SignerAddress, payload, sdk.NewCoins())

	ch := d.Submit(&Entry{
		ID:          "commit-" + p.DRID,
		Priority:    chainclient.PriorityLow,
		Kind:        "commit_data_result",
		Messages:    []sdk.Msg{executeMsg},
		SignerIndex: p.SignerIndex,
		GasOption:   p.GasOption,
		TraceID:     "commit-" + p.DRID,
	})
	return Await(ctx, ch)
}

// RevealParams bundles the fields pkg/drtask needs to submit a reveal
// transaction.
type RevealParams struct {
	DRID            string
	DRBlockHeight   uint64
	ExitCode        uint8
	GasUsed         uint64
	ProxyPublicKeys []string
	Reveal          []byte
	Proof           []byte
	PublicKey       string // identity public key, not the Cosmos signer address
	SignerAddress   string
	SignerIndex     int
	GasOption       string
	Stdout          []string
	Stderr          []string
}

// SubmitReveal queues a reveal_data_result message as HIGH priority and
// blocks for the on-chain outcome.
func (d *Dispatcher) SubmitReveal(ctx context.Context, p RevealParams) (*chainclient.TxResult, error) {
	msg := protocolcrypto.RevealDataResultMsg{
		PublicKey: p.PublicKey,
		Proof:     protocolcrypto.ToHex(p.Proof),
		RevealBody: protocolcrypto.RevealBodyMsg{
			DRID:            p.DRID,
			DRBlockHeight:   p.DRBlockHeight,
			ExitCode:        p.ExitCode,
			GasUsed:         p.GasUsed,
			ProxyPublicKeys: p.ProxyPublicKeys,
			RevealBase64:    revealBase64(p.Reveal),
		},
		Stderr: p.Stderr,
		Stdout: p.Stdout,
	}
	payload, err := marshalEnvelope("reveal_data_result", msg)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: marshaling reveal message: %w", err)
	}
	executeMsg := d.chain.WrapContractExecute(p.SignerAddress, payload, sdk.NewCoins())

	ch := d.Submit(&Entry{
		ID:          "reveal-" + p.DRID,
		Priority:    chainclient.PriorityHigh,
		Kind:        "reveal_data_result",
		Messages:    []sdk.Msg{executeMsg},
		SignerIndex: p.SignerIndex,
		GasOption:   p.GasOption,
		TraceID:     "reveal-" + p.DRID,
	})
	return Await(ctx, ch)
}
