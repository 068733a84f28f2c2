package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of ethclient.Client the verifier needs.
type Backend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const opPush1, opPush4, opPush32 = 0x60, 0x63, 0x7f

var (
	ownerABI = mustParseABI(`[{"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`)

	mintSelectors = [][]byte{
		selector("mint(address,uint256)"),
		selector("mint(uint256)"),
		selector("mintTo(address,uint256)"),
	}
	transferOwnershipSelector = selector("transferOwnership(address)")
	ownerSelector             = selector("owner()")

	deadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EVMVerifier inspects deployed bytecode for privileged entry points and reads owner().
type EVMVerifier struct {
	chain    model.ChainID
	rpcURL   string
	mu       sync.Mutex
	backend  Backend
	cacheTTL time.Duration
	cache    map[string]cacheEntry
	timeout  time.Duration
	retries  int
}

type cacheEntry struct {
	report  model.ContractReport
	expires time.Time
}

func NewEVMVerifier(chain model.ChainID, rpcURL string, ttl, timeout time.Duration, retries int) *EVMVerifier {
	v := newVerifier(chain, ttl, timeout, retries)
	v.rpcURL = strings.TrimSpace(rpcURL)
	return v
}

// NewEVMVerifierWithBackend uses an already connected backend.
func NewEVMVerifierWithBackend(chain model.ChainID, backend Backend, ttl, timeout time.Duration, retries int) *EVMVerifier {
	v := newVerifier(chain, ttl, timeout, retries)
	v.backend = backend
	return v
}

func newVerifier(chain model.ChainID, ttl, timeout time.Duration, retries int) *EVMVerifier {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &EVMVerifier{
		chain:    chain,
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
		timeout:  timeout,
		retries:  retries,
	}
}

func (v *EVMVerifier) Inspect(ctx context.Context, id model.TokenID) (model.ContractReport, error) {
	if id.Chain != v.chain {
		return model.ContractReport{}, fmt.Errorf("verifier for %s cannot inspect %s", v.chain, id)
	}
	if !common.IsHexAddress(id.Address) {
		return model.ContractReport{}, fmt.Errorf("invalid contract address %q", id.Address)
	}
	cacheKey := id.String()
	if hit, ok := v.cacheGet(cacheKey); ok {
		return hit, nil
	}
	contract := common.HexToAddress(id.Address)

	var lastErr error
	for attempt := 0; attempt <= v.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
		report, err := v.inspectOnce(attemptCtx, contract)
		cancel()
		if err != nil {
			lastErr = err
			if !shouldRetry(ctx, attempt, v.retries) {
				break
			}
			continue
		}
		v.cacheSet(cacheKey, report)
		return report, nil
	}
	return model.ContractReport{}, lastErr
}

func (v *EVMVerifier) inspectOnce(ctx context.Context, contract common.Address) (model.ContractReport, error) {
	backend, err := v.getBackend(ctx)
	if err != nil {
		return model.ContractReport{}, err
	}
	code, err := backend.CodeAt(ctx, contract, nil)
	if err != nil {
		return model.ContractReport{}, fmt.Errorf("read bytecode: %w", err)
	}
	if len(code) == 0 {
		return model.ContractReport{}, fmt.Errorf("no contract code at %s", contract.Hex())
	}

	selectors := pushedSelectors(code)
	report := model.ContractReport{Source: "evm", Renounced: true}
	for _, s := range mintSelectors {
		if selectors[string(s)] {
			report.Mintable = true
		}
	}
	report.OwnershipTransferable = selectors[string(transferOwnershipSelector)]

	if !selectors[string(ownerSelector)] {
		return report, nil
	}
	data, err := ownerABI.Pack("owner")
	if err != nil {
		return model.ContractReport{}, fmt.Errorf("pack owner call: %w", err)
	}
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return model.ContractReport{}, fmt.Errorf("owner call failed: %w", err)
	}
	values, err := ownerABI.Unpack("owner", out)
	if err != nil || len(values) != 1 {
		return model.ContractReport{}, fmt.Errorf("decode owner: %v", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return model.ContractReport{}, fmt.Errorf("unexpected owner type %T", values[0])
	}
	report.Owner = strings.ToLower(owner.Hex())
	report.Renounced = owner == (common.Address{}) || owner == deadAddress
	return report, nil
}

// pushedSelectors collects every PUSH4 immediate in the bytecode. Push data of other widths
// is skipped so that constants are not mistaken for dispatch entries.
func pushedSelectors(code []byte) map[string]bool {
	out := make(map[string]bool)
	for i := 0; i < len(code); i++ {
		op := code[i]
		if op < opPush1 || op > opPush32 {
			continue
		}
		width := int(op-opPush1) + 1
		if op == opPush4 && i+5 <= len(code) {
			out[string(bytes.Clone(code[i+1:i+5]))] = true
		}
		i += width
	}
	return out
}

func (v *EVMVerifier) getBackend(ctx context.Context) (Backend, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backend != nil {
		return v.backend, nil
	}
	if v.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured for %s", v.chain)
	}
	client, err := ethclient.DialContext(ctx, v.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	v.backend = client
	return v.backend, nil
}

func (v *EVMVerifier) cacheGet(key string) (model.ContractReport, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[key]
	if !ok {
		return model.ContractReport{}, false
	}
	if time.Now().After(entry.expires) {
		delete(v.cache, key)
		return model.ContractReport{}, false
	}
	return entry.report, true
}

func (v *EVMVerifier) cacheSet(key string, report model.ContractReport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[key] = cacheEntry{
		report:  report,
		expires: time.Now().Add(v.cacheTTL),
	}
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}
	time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	return true
}
