package main

import (
	"time"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/config"
	"github.com/sedaoverlay/node/pkg/drtask"
	"github.com/sedaoverlay/node/pkg/overlay"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// chainClientConfig maps the loaded file/env config onto
// pkg/chainclient.Config.
func chainClientConfig(cfg *config.Config) chainclient.Config {
	return chainclient.Config{
		RPC:                           cfg.SedaChain.RPC,
		ChainID:                       cfg.SedaChain.ChainID,
		ContractAddress:               cfg.SedaChain.Contract,
		GasPrice:                      cfg.SedaChain.GasPrice,
		GasAdjustmentFactor:           cfg.SedaChain.GasAdjustmentFactor,
		GasAdjustmentFactorCosmos:     cfg.SedaChain.GasAdjustmentFactorCosmosMsgs,
		Gas:                           cfg.SedaChain.Gas,
		MemoSuffix:                    cfg.SedaChain.MemoSuffix,
		QueueInterval:                 ms(cfg.SedaChain.QueueIntervalMs),
		MaxRetries:                    cfg.SedaChain.MaxRetries,
		SleepBetweenFailedTx:          ms(cfg.SedaChain.SleepBetweenFailedTxMs),
		TransactionBlockSearchMax:     cfg.SedaChain.TransactionBlockSearchThreshold,
		DisableTransactionBlockSearch: cfg.SedaChain.DisableTransactionBlockSearch,
		TransactionPollInterval:       ms(cfg.SedaChain.TransactionPollIntervalMs),
	}
}

// wasmPoolConfig maps the loaded config onto pkg/wasmpool.Config.
func wasmPoolConfig(cfg *config.Config) wasmpool.Config {
	c := wasmpool.DefaultConfig()
	c.MaxVmLogsSizeBytes = cfg.Node.MaxVmLogsSizeBytes
	c.BlockLocalhost = cfg.Node.BlockLocalhost
	c.TerminateAfterCompletion = cfg.Node.TerminateAfterCompletion
	return c
}

// drTaskConfig maps the loaded config onto pkg/drtask.Config.
func drTaskConfig(cfg *config.Config) drtask.Config {
	c := drtask.DefaultConfig()
	c.StatusCheckInterval = ms(cfg.Intervals.StatusCheckMs)
	c.DRTaskInterval = ms(cfg.Intervals.DRTaskMs)
	c.MaxRetries = cfg.SedaChain.MaxRetries
	c.SleepBetweenFailedTx = ms(cfg.SedaChain.SleepBetweenFailedTxMs)
	c.MaxGasLimit = cfg.Node.MaxGasLimit
	c.GasAdjustmentFactor = cfg.SedaChain.GasAdjustmentFactor
	return c
}

// overlayConfig maps the loaded config onto pkg/overlay.Config.
func overlayConfig(cfg *config.Config) overlay.Config {
	return overlay.Config{
		MaxConcurrentRequests:     cfg.Node.MaxConcurrentRequests,
		AdmissionInterval:         ms(cfg.Node.ProcessDrIntervalMs),
		FunderInterval:            5 * time.Minute,
		IdentityCheckInterval:     ms(cfg.Intervals.IdentityCheckMs),
		RewardsWithdrawalInterval: ms(cfg.SedaChain.RewardsWithdrawalIntervalMs),
		EnableRewardsWithdrawal:   cfg.SedaChain.EnableRewardsWithdrawal,
		SubAccountCount:           cfg.SedaChain.AccountAmounts,
		DRTaskConfig:              drTaskConfig(cfg),
		ChainID:                   cfg.SedaChain.ChainID,
		ContractAddress:           cfg.SedaChain.Contract,
	}
}
