package drtask

import (
	"encoding/json"
	"math"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

// contractProjection is the JSON shape whose serialized length feeds the
// commit-gas estimate: "drBytes is the JSON-serialized
// contract-facing DR projection."
type contractProjection struct {
	ID                string `json:"dr_id"`
	Version           string `json:"version"`
	ExecProgramID     string `json:"exec_program_id"`
	ReplicationFactor uint16 `json:"replication_factor"`
	Height            uint64 `json:"height"`
}

func projectionBytes(dr *drtypes.DataRequest) int {
	b, err := json.Marshal(contractProjection{
		ID:                dr.ID,
		Version:           dr.Version,
		ExecProgramID:     dr.ExecProgramID,
		ReplicationFactor: dr.ReplicationFactor,
		Height:            dr.Height,
	})
	if err != nil {
		return 0
	}
	return len(b)
}

// estimateCommitGas implements the protocol's commit gas formula:
//
//	gas = round((18*drBytes + 280000 + 7500*replicationFactor) * gasAdjustmentFactor)
func estimateCommitGas(dr *drtypes.DataRequest, gasAdjustmentFactor float64) uint64 {
	drBytes := float64(projectionBytes(dr))
	raw := 18*drBytes + 280000 + 7500*float64(dr.ReplicationFactor)
	return uint64(math.Round(raw * gasAdjustmentFactor))
}

// estimateRevealGas implements the protocol's reveal gas formula:
//
//	gas = (commitGas + 60*revealBytes + 15*stdBytes + 3000*replicationFactor) * gasAdjustmentFactor
func estimateRevealGas(dr *drtypes.DataRequest, revealBytes, stdBytes int, gasAdjustmentFactor float64) uint64 {
	commitGas := estimateCommitGas(dr, 1) // the adjustment factor is applied once, at the end
	raw := float64(commitGas) + 60*float64(revealBytes) + 15*float64(stdBytes) + 3000*float64(dr.ReplicationFactor)
	return uint64(math.Round(raw * gasAdjustmentFactor))
}

func stdBytesOf(stdout, stderr []string) int {
	n := 0
	for _, s := range stdout {
		n += len(s)
	}
	for _, s := range stderr {
		n += len(s)
	}
	return n
}
