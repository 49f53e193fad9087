package identity

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"
)

// ChainBalanceClient is the narrow chain surface the funder needs; satisfied
// by pkg/chainclient.Client.
type ChainBalanceClient interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	SendFunds(ctx context.Context, fromSignerIndex int, toAddress string, amount *big.Int) error
}

// SubAccountFunder tops up sub-accounts 1..M-1 from account 0 (the
// funder) whenever they fall below the configured threshold.
type SubAccountFunder struct {
	client             ChainBalanceClient
	subAccountAddrs    []string // index 0 is the funder
	minSedaPerAccount  *big.Int
}

// NewSubAccountFunder wires a funder over the sub-account address list;
// index 0 must be the funder account.
func NewSubAccountFunder(client ChainBalanceClient, subAccountAddrs []string, minSedaPerAccount *big.Int) *SubAccountFunder {
	return &SubAccountFunder{
		client:            client,
		subAccountAddrs:   subAccountAddrs,
		minSedaPerAccount: minSedaPerAccount,
	}
}

// Topup tops up every sub-account below minSedaPerAccount from account 0.
// Refuses to fund at all if account 0 holds less than 2x the threshold
//; a funding failure for one account is logged and does not
// stop the rest.
func (f *SubAccountFunder) Topup(ctx context.Context) error {
	if len(f.subAccountAddrs) < 2 {
		return nil
	}

	funderBalance, err := f.client.GetBalance(ctx, f.subAccountAddrs[0])
	if err != nil {
		return fmt.Errorf("identity: funder balance query failed: %w", err)
	}

	threshold := new(big.Int).Mul(f.minSedaPerAccount, big.NewInt(2))
	if funderBalance.Cmp(threshold) < 0 {
		return fmt.Errorf("identity: funder account holds %s, need at least %s to begin funding", funderBalance, threshold)
	}

	for i := 1; i < len(f.subAccountAddrs); i++ {
		addr := f.subAccountAddrs[i]
		balance, err := f.client.GetBalance(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Int("account", i).Msg("sub-account balance query failed")
			continue
		}
		if balance.Cmp(f.minSedaPerAccount) >= 0 {
			continue
		}
		if err := f.client.SendFunds(ctx, 0, addr, f.minSedaPerAccount); err != nil {
			log.Warn().Err(err).Int("account", i).Msg("sub-account topup failed")
			continue
		}
		log.Info().Int("account", i).Str("amount", f.minSedaPerAccount.String()).Msg("sub-account topped up")
	}
	return nil
}
