package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/diagserver"
	"github.com/sedaoverlay/node/pkg/discovery"
	"github.com/sedaoverlay/node/pkg/dispatcher"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/eligibility"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/kvstore"
	"github.com/sedaoverlay/node/pkg/overlay"
	"github.com/sedaoverlay/node/pkg/progcache"
	"github.com/sedaoverlay/node/pkg/vmadapter"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

var runFlags *chainFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the overlay node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd.Context())
	},
}

func init() {
	runFlags = addChainFlags(runCmd)
}

// runNode wires every subsystem and runs MainTask alongside the
// diagnostics HTTP server until an interrupt or terminate signal arrives.
// The process owns exactly three long-lived singletons (logger, chain
// client, worker pool); all other state is owned by the MainTask.
func runNode(parent context.Context) error {
	cfg, err := runFlags.load()
	if err != nil {
		return fmt.Errorf("run: loading config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	identities, err := identity.DeriveIdentities(cfg.SedaChain.Mnemonic, cfg.SedaChain.IdentitiesAmount)
	if err != nil {
		return fmt.Errorf("run: deriving identities: %w", err)
	}
	manager := identity.NewManager(identities)

	signers, err := deriveSubAccountSigners(cfg.SedaChain.Mnemonic, cfg.SedaChain.AccountAmounts)
	if err != nil {
		return fmt.Errorf("run: deriving sub-account signers: %w", err)
	}

	chain, err := chainclient.New(chainClientConfig(cfg), signers)
	if err != nil {
		return fmt.Errorf("run: dialing chain: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := drpool.New()

	store, err := kvstore.Open(filepath.Join(cfg.HomeDir, "state"))
	if err != nil {
		return fmt.Errorf("run: opening state store: %w", err)
	}
	defer store.Close()
	programs := progcache.New(chain, store)

	adapter := vmadapter.NewWithOptions(cfg.SedaChain.FollowHTTPRedirects)
	wasm := wasmpool.New(ctx, adapter, wasmPoolConfig(cfg))
	defer wasm.Close(context.Background())

	disp := dispatcher.New(chain, cfg.SedaChain.AccountAmounts, ms(cfg.SedaChain.QueueIntervalMs), cfg.SedaChain.MaxRetries, ms(cfg.SedaChain.SleepBetweenFailedTxMs))

	eligCfg := eligibility.DefaultConfig()
	eligCfg.Interval = ms(cfg.Intervals.EligibilityCheckMs)
	elig := eligibility.New(chain, pool, manager, eligCfg)

	fetchCfg := discovery.DefaultConfig()
	fetchCfg.Interval = ms(cfg.Intervals.FetchTaskMs)
	fetch := discovery.New(chain, pool, fetchCfg, func(dr *drtypes.DataRequest) {
		elig.Evaluate(ctx)
	})

	funder := identity.NewSubAccountFunder(chain, subAccountAddresses(signers), parseBigOrDefault(cfg.SedaChain.MinSedaPerAccount, big.NewInt(1_000_000_000_000_000_000)))
	readiness := identity.NewReadinessChecker(manager, chain)

	var rewards *identity.RewardsWithdrawer
	if cfg.SedaChain.EnableRewardsWithdrawal {
		rewards = identity.NewRewardsWithdrawer(
			manager,
			chain,
			disp,
			parseBigOrDefault(cfg.SedaChain.RewardsWithdrawalMinimumThresh, big.NewInt(1_000_000_000_000_000_000)),
			signers[0].Address,
			cfg.SedaChain.ChainID,
			cfg.SedaChain.Contract,
			func(identityID string) *big.Int {
				_, seq, err := chain.QueryStakerAndSeq(context.Background(), identityID)
				if err != nil || seq == nil {
					return big.NewInt(0)
				}
				return seq
			},
		)
	}

	ov := overlay.New(chain, pool, manager, disp, wasm, programs, funder, readiness, rewards, fetch, elig, overlayConfig(cfg))
	diag := diagserver.New(ov, diagserver.Config{Version: "1.0.0", VmVersion: "wazero"})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ov.Run(ctx); err != nil {
			errCh <- fmt.Errorf("overlay: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf(":%d", cfg.HTTPServer.Port)
		if err := diagserver.Run(ctx, addr, diag.Handler()); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("diagserver: %w", err)
		}
	}()

	log.Info().Str("chainId", cfg.SedaChain.ChainID).Int("identities", len(identities)).Int("subAccounts", len(signers)).Msg("seda-overlay: node started")

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseBigOrDefault(s string, fallback *big.Int) *big.Int {
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return n
	}
	return fallback
}
