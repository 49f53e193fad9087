// Package wasmpool is the WASM execution worker pool: a bounded pool of
// wazero runtimes that run each DR's oracle program under gas,
// stdout/stderr, and reveal-size bounds, with a short execution cache
// keyed by (drId, drHeight) to deduplicate retries.
//
// wazero has no built-in fuel/gas accounting, so metering is enforced by
// a host function that panics past budget and a recovered call boundary
// that turns the panic into an out-of-gas exit code.
package wasmpool

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"runtime"
	"strconv"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/ttlcache"
)

// Adapter is the VM's capability set: HTTP, proxy-HTTP with
// identity-signed proof, and the proxy's gas-cost quote.
type Adapter interface {
	// HTTPFetch performs a plain HTTP fetch. When blockLocalhost is true,
	// requests to loopback addresses are rejected.
	HTTPFetch(ctx context.Context, url string, blockLocalhost bool) ([]byte, int, error)

	// ProxyHTTPFetch signs a keccak256("proxy" || drId || chainId ||
	// coreContractAddress) proof with identityPrivateKey, attaches it as
	// the x-seda-proof header, verifies the response's x-seda-signature
	// against its declared x-seda-publickey, and returns the body plus the
	// proxy public key used.
	ProxyHTTPFetch(ctx context.Context, url string, drID, chainID, coreContractAddress string, identityPrivateKey []byte) (body []byte, proxyPublicKey string, err error)

	// GetProxyHTTPGasCost issues an OPTIONS prefetch against the proxy,
	// returning the quoted fee converted to gas via fee/gasPrice.
	GetProxyHTTPGasCost(ctx context.Context, url string, gasPrice *big.Int) (gasCost uint64, err error)
}

// CallData is one VM invocation's input. ChainID and ContractAddress
// feed the proxy-HTTP proof the adapter signs on the program's behalf.
type CallData struct {
	IdentityPrivateKey []byte
	DR                 *drtypes.DataRequest
	EligibilityHeight  uint64
	WasmBytes          []byte
	Env                map[string]string
	GasLimit           uint64
	ChainID            string
	ContractAddress    string
}

// Result is the VM's output.
type Result struct {
	ExitCode            uint8
	Stdout              []string
	Stderr              []string
	Result              []byte
	GasUsed             uint64
	UsedProxyPublicKeys []string
}

// Config holds Pool's tunables.
type Config struct {
	ThreadAmount             int           // default = runtime.GOMAXPROCS(0)
	MaxVmLogsSizeBytes       int           // default 1024
	BlockLocalhost           bool          // default true
	TerminateAfterCompletion bool          // default false
	ExecutionCacheTTL        time.Duration // default 14s
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ThreadAmount:       runtime.GOMAXPROCS(0),
		MaxVmLogsSizeBytes: 1024,
		BlockLocalhost:     true,
		ExecutionCacheTTL:  14 * time.Second,
	}
}

// outOfGas is recovered at the call boundary to turn an over-budget host
// call (consume_gas, or a proxy fetch's gas deduction) into a normal
// non-zero-exit Result rather than an error.
type outOfGas struct{ used uint64 }

// Pool is the bounded WASM worker pool.
type Pool struct {
	runtime wazero.Runtime
	adapter Adapter
	cfg     Config

	sem   chan struct{}
	cache *ttlcache.Cache[*Result]
}

// New builds a Pool with a shared wazero.Runtime and WASI instantiated
// once, sized to cfg.ThreadAmount concurrent executions.
func New(ctx context.Context, adapter Adapter, cfg Config) *Pool {
	if cfg.ThreadAmount <= 0 {
		cfg.ThreadAmount = 1
	}
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	return &Pool{
		runtime: r,
		adapter: adapter,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.ThreadAmount),
		cache:   ttlcache.New[*Result](cfg.ExecutionCacheTTL),
	}
}

// Close releases the runtime's compilation cache and native resources.
func (p *Pool) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}

// Execute runs cd's oracle program, deduplicating concurrent/rapid retries
// for the same (drId, drHeight) via a 14s execution cache.
func (p *Pool) Execute(ctx context.Context, cd CallData) (*Result, error) {
	key := fmt.Sprintf("%s:%d", cd.DR.ID, cd.DR.Height)
	return p.cache.GetOrFetch(key, func() (*Result, error) {
		return p.run(ctx, cd)
	})
}

func (p *Pool) run(ctx context.Context, cd CallData) (res *Result, err error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	compiled, err := p.runtime.CompileModule(ctx, cd.WasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmpool: compiling module: %w", err)
	}
	if p.cfg.TerminateAfterCompletion {
		defer compiled.Close(ctx)
	}

	stdout := newCappedBuffer(p.cfg.MaxVmLogsSizeBytes)
	stderr := newCappedBuffer(p.cfg.MaxVmLogsSizeBytes)

	state := &hostState{remaining: cd.GasLimit}
	host, err := p.buildHostModule(ctx, cd, state)
	if err != nil {
		return nil, fmt.Errorf("wasmpool: building host module: %w", err)
	}
	defer host.Close(ctx)

	modCfg := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithName(cd.DR.ID)
	for k, v := range cd.Env {
		modCfg = modCfg.WithEnv(k, v)
	}

	res, err = func() (result *Result, callErr error) {
		defer func() {
			if r := recover(); r != nil {
				if oog, ok := r.(outOfGas); ok {
					result = &Result{
						ExitCode: 1,
						Stdout:   stdout.lines(),
						Stderr:   append(stderr.lines(), "out of gas"),
						GasUsed:  oog.used,
					}
					callErr = nil
					return
				}
				callErr = fmt.Errorf("wasmpool: panic during execution: %v", r)
			}
		}()

		mod, instErr := p.runtime.InstantiateModule(ctx, compiled, modCfg)
		if instErr != nil {
			return nil, fmt.Errorf("wasmpool: instantiating module: %w", instErr)
		}
		defer mod.Close(ctx)

		exitCode := uint8(0)
		runFunc := mod.ExportedFunction("run")
		if runFunc == nil {
			return nil, fmt.Errorf("wasmpool: module does not export 'run'")
		}
		results, callErr := runFunc.Call(ctx)
		if callErr != nil {
			exitCode = 1
		}

		var resultBytes []byte
		if len(results) > 0 {
			resultBytes = []byte(strconv.FormatUint(results[0], 10))
		}

		return &Result{
			ExitCode:            exitCode,
			Stdout:              stdout.lines(),
			Stderr:              stderr.lines(),
			Result:              resultBytes,
			GasUsed:             cd.GasLimit - state.remaining,
			UsedProxyPublicKeys: state.usedProxyPublicKeys,
		}, nil
	}()
	return res, err
}

// hostState is one execution's mutable host-side state: the remaining
// gas budget, the proxy public keys used so far, and the body of the
// last fetch awaiting a call_result_write.
type hostState struct {
	remaining           uint64
	lastResult          []byte
	usedProxyPublicKeys []string
}

// buildHostModule wires the "seda" host module the oracle program
// imports: gas accounting plus the HTTP capability surface. The fetch
// calls read a URL from guest linear memory, run the request through the
// adapter, and stash the body (or the error text) in hostState for a
// following call_result_write; their u64 return packs a status in the
// high 32 bits (0 ok, 1 error) and the result length in the low 32.
func (p *Pool) buildHostModule(ctx context.Context, cd CallData, state *hostState) (api.Closer, error) {
	builder := p.runtime.NewHostModuleBuilder("seda")

	builder.NewFunctionBuilder().WithFunc(func(ctx context.Context, amount uint64) {
		if amount > state.remaining {
			panic(outOfGas{used: cd.GasLimit})
		}
		state.remaining -= amount
	}).Export("consume_gas")

	builder.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, urlPtr, urlLen uint32) uint64 {
		url, ok := m.Memory().Read(urlPtr, urlLen)
		if !ok {
			return state.stash(nil, fmt.Errorf("url out of bounds"))
		}
		body, _, err := p.adapter.HTTPFetch(ctx, string(url), p.cfg.BlockLocalhost)
		return state.stash(body, err)
	}).Export("http_fetch")

	// proxy_http_fetch deducts the proxy's quoted gas cost before the
	// fetch itself, so an over-budget call never reaches the proxy.
	builder.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, urlPtr, urlLen uint32) uint64 {
		urlBytes, ok := m.Memory().Read(urlPtr, urlLen)
		if !ok {
			return state.stash(nil, fmt.Errorf("url out of bounds"))
		}
		url := string(urlBytes)

		gasCost, err := p.adapter.GetProxyHTTPGasCost(ctx, url, bigOrZero(cd.DR.PostedGasPrice))
		if err != nil {
			return state.stash(nil, err)
		}
		if gasCost > state.remaining {
			panic(outOfGas{used: cd.GasLimit})
		}
		state.remaining -= gasCost

		body, proxyPublicKey, err := p.adapter.ProxyHTTPFetch(ctx, url, cd.DR.ID, cd.ChainID, cd.ContractAddress, cd.IdentityPrivateKey)
		if err != nil {
			return state.stash(nil, err)
		}
		state.usedProxyPublicKeys = append(state.usedProxyPublicKeys, proxyPublicKey)
		return state.stash(body, nil)
	}).Export("proxy_http_fetch")

	builder.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, urlPtr, urlLen uint32) uint64 {
		url, ok := m.Memory().Read(urlPtr, urlLen)
		if !ok {
			return 0
		}
		gasCost, err := p.adapter.GetProxyHTTPGasCost(ctx, string(url), bigOrZero(cd.DR.PostedGasPrice))
		if err != nil {
			return 0
		}
		return gasCost
	}).Export("get_proxy_http_gas_cost")

	// call_result_write copies the stashed fetch result into guest memory
	// and returns the number of bytes written.
	builder.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) uint32 {
		n := uint32(len(state.lastResult))
		if length < n {
			n = length
		}
		if n == 0 {
			return 0
		}
		if !m.Memory().Write(ptr, state.lastResult[:n]) {
			return 0
		}
		return n
	}).Export("call_result_write")

	return builder.Instantiate(ctx)
}

// stash records body (or err's text) as the pending call_result_write
// payload and returns the packed status/length pair.
func (st *hostState) stash(body []byte, err error) uint64 {
	if err != nil {
		st.lastResult = []byte(err.Error())
		return 1<<32 | uint64(len(st.lastResult))
	}
	st.lastResult = body
	return uint64(len(body))
}

// cappedBuffer is an io.Writer that silently drops bytes past its limit,
// bounding stdout/stderr capture at maxVmLogsSizeBytes.
type cappedBuffer struct {
	limit int
	buf   bytes.Buffer
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			c.buf.Write(p[:remaining])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) lines() []string {
	if c.buf.Len() == 0 {
		return nil
	}
	var out []string
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		out = append(out, string(line))
	}
	return out
}

// EnvForDR builds the VM_MODE=dr environment map the oracle program
// reads, from a DR and its clamped gas limit.
func EnvForDR(dr *drtypes.DataRequest, eligibilityHeight uint64, clampedGasLimit uint64) map[string]string {
	return map[string]string{
		"VM_MODE":              "dr",
		"DR_ID":                dr.ID,
		"DR_HEIGHT":            strconv.FormatUint(dr.Height, 10),
		"EXEC_PROGRAM_ID":      dr.ExecProgramID,
		"DR_REPLICATION_FACTOR": strconv.FormatUint(uint64(dr.ReplicationFactor), 10),
		"DR_GAS_PRICE":         bigOrZero(dr.PostedGasPrice).String(),
		"DR_EXEC_GAS_LIMIT":    strconv.FormatUint(clampedGasLimit, 10),
		"DR_TALLY_GAS_LIMIT":   strconv.FormatUint(dr.TallyGasLimit, 10),
		"DR_MEMO":              fmt.Sprintf("%x", dr.Memo),
		"DR_PAYBACK_ADDRESS":   fmt.Sprintf("%x", dr.PaybackAddress),
		"TALLY_PROGRAM_ID":     dr.TallyProgramID,
		"TALLY_INPUTS":         fmt.Sprintf("%x", dr.TallyInputs),
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// ClampedGasLimit computes min(execGasLimit/replicationFactor,
// maxGasLimit), the per-replica execution budget.
func ClampedGasLimit(execGasLimit uint64, replicationFactor uint16, maxGasLimit uint64) uint64 {
	rf := uint64(replicationFactor)
	if rf == 0 {
		rf = 1
	}
	perReplica := execGasLimit / rf
	if perReplica > maxGasLimit {
		return maxGasLimit
	}
	return perReplica
}

