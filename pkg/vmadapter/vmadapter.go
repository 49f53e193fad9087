// Package vmadapter is the concrete implementation of pkg/wasmpool.Adapter:
// plain HTTP fetch with an optional loopback blocklist, identity-signed
// proxy-HTTP fetch, and the proxy's gas-cost quote. One shared
// *http.Client; callers decide retries.
package vmadapter

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sedaoverlay/node/pkg/protocolcrypto"
)

const (
	proxyProofHeader     = "x-seda-proof"
	proxySignatureHeader = "x-seda-signature"
	proxyPublicKeyHeader = "x-seda-publickey"
	proxyFeeHeader       = "x-seda-fee"
)

// Adapter is the HTTP-backed VM capability set.
type Adapter struct {
	client *http.Client
}

// New builds an Adapter with a bounded-timeout HTTP client.
func New() *Adapter {
	return NewWithOptions(true)
}

// NewWithOptions builds an Adapter; followRedirects=false makes every
// fetch return the redirect response itself instead of chasing it.
func NewWithOptions(followRedirects bool) *Adapter {
	client := &http.Client{Timeout: 10 * time.Second}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Adapter{client: client}
}

// HTTPFetch performs a plain GET, rejecting loopback destinations when
// blockLocalhost is true.
func (a *Adapter) HTTPFetch(ctx context.Context, rawURL string, blockLocalhost bool) ([]byte, int, error) {
	if blockLocalhost {
		if err := rejectLoopback(rawURL); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("vmadapter: building request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("vmadapter: fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("vmadapter: reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ProxyHTTPFetch signs a keccak256("proxy" || drId || chainId ||
// coreContractAddress) proof, attaches it as x-seda-proof, and verifies
// the response's x-seda-signature against its declared x-seda-publickey.
// The proxy public key used is returned so the caller can fold it into
// the reveal body's proxyPublicKeys list.
func (a *Adapter) ProxyHTTPFetch(ctx context.Context, rawURL string, drID, chainID, coreContractAddress string, identityPrivateKey []byte) ([]byte, string, error) {
	proofHash := protocolcrypto.Keccak256([]byte("proxy"), protocolcrypto.MustHex(drID), []byte(chainID), []byte(coreContractAddress))
	proof, err := protocolcrypto.Prove(identityPrivateKey, proofHash)
	if err != nil {
		return nil, "", fmt.Errorf("vmadapter: signing proxy proof: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("vmadapter: building proxy request: %w", err)
	}
	req.Header.Set(proxyProofHeader, protocolcrypto.ToHex(proof))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("vmadapter: proxy fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("vmadapter: reading proxy response body: %w", err)
	}

	proxyPubKeyHex := resp.Header.Get(proxyPublicKeyHeader)
	sigHex := resp.Header.Get(proxySignatureHeader)
	if proxyPubKeyHex == "" || sigHex == "" {
		return nil, "", fmt.Errorf("vmadapter: proxy response missing %s/%s headers", proxyPublicKeyHeader, proxySignatureHeader)
	}

	bodyHash := protocolcrypto.Keccak256(body)
	if !protocolcrypto.Verify(protocolcrypto.MustHex(proxyPubKeyHex), bodyHash, protocolcrypto.MustHex(sigHex)) {
		return nil, "", fmt.Errorf("vmadapter: proxy signature verification failed for %s", proxyPubKeyHex)
	}

	return body, proxyPubKeyHex, nil
}

// GetProxyHTTPGasCost issues an OPTIONS prefetch against the proxy,
// converting the quoted fee to gas via fee/gasPrice.
func (a *Adapter) GetProxyHTTPGasCost(ctx context.Context, rawURL string, gasPrice *big.Int) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("vmadapter: building options request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vmadapter: quoting proxy gas cost for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	feeRaw := resp.Header.Get(proxyFeeHeader)
	if feeRaw == "" {
		return 0, fmt.Errorf("vmadapter: proxy OPTIONS response missing %s header", proxyFeeHeader)
	}
	fee, ok := new(big.Int).SetString(feeRaw, 10)
	if !ok {
		return 0, fmt.Errorf("vmadapter: proxy OPTIONS response has non-integer %s %q", proxyFeeHeader, feeRaw)
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		return 0, fmt.Errorf("vmadapter: gasPrice must be positive to convert proxy fee to gas")
	}
	return new(big.Int).Div(fee, gasPrice).Uint64(), nil
}

// rejectLoopback refuses URLs whose host resolves to a loopback address.
func rejectLoopback(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("vmadapter: parsing url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("vmadapter: url %q has no host", rawURL)
	}
	if host == "localhost" {
		return fmt.Errorf("vmadapter: refusing loopback host %q (blockLocalhost)", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() {
			return fmt.Errorf("vmadapter: refusing loopback address %q (blockLocalhost)", host)
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("vmadapter: resolving host %q: %w", host, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.IsLoopback() {
			return fmt.Errorf("vmadapter: refusing loopback resolution %q -> %q (blockLocalhost)", host, a)
		}
	}
	return nil
}
