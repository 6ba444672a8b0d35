package proxy

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EIP-1967 storage slots.
var (
	// keccak256("eip1967.proxy.implementation") - 1
	implementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// keccak256("eip1967.proxy.beacon") - 1
	beaconSlot = common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50")
)

// Function selectors used by the conventional-call fallbacks.
var (
	implementationSelector    = []byte{0x5c, 0x60, 0xda, 0x1b} // implementation()
	getImplementationSelector = []byte{0xaa, 0xf1, 0x0f, 0x42} // getImplementation()
)

// EIP-1167 minimal-proxy runtime template. The implementation address
// sits between prefix and suffix at a fixed offset.
var (
	minimalProxyPrefix = []byte{0x36, 0x3d, 0x3d, 0x37, 0x3d, 0x3d, 0x3d, 0x36, 0x3d, 0x73}
	minimalProxySuffix = []byte{0x5a, 0xf4, 0x3d, 0x82, 0x80, 0x3e, 0x90, 0x3d, 0x91, 0x60, 0x2b, 0x57, 0xfd, 0x5b, 0xf3}
)

// StateReader is the narrow chain-read surface the resolver needs.
type StateReader interface {
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Resolver maps proxy contracts to their implementation addresses.
// Resolutions are cached for the resolver's lifetime: proxies are not
// expected to be re-pointed mid-session, so a stale entry is accepted
// until the resolver is rebuilt.
type Resolver struct {
	reader     StateReader
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration

	mu    sync.RWMutex
	cache map[common.Address]common.Address
}

// NewResolver builds a Resolver with bounded retries on external reads.
func NewResolver(reader StateReader, maxRetries int, backoff time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Resolver{
		reader:     reader,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
		cache:      make(map[common.Address]common.Address),
	}
}

// Resolve returns the implementation address behind a (possibly
// proxied) contract. Detection methods are tried in order; the first
// success wins. Total failure degrades to the address itself and is
// never surfaced as an error. Both positive and negative results are
// cached; concurrent resolutions of the same address converge to the
// same value (last writer wins).
func (r *Resolver) Resolve(ctx context.Context, address common.Address) common.Address {
	r.mu.RLock()
	impl, ok := r.cache[address]
	r.mu.RUnlock()
	if ok {
		return impl
	}

	impl = r.detect(ctx, address)

	r.mu.Lock()
	r.cache[address] = impl
	r.mu.Unlock()

	if impl != address {
		r.logger.Debug("resolved proxy",
			zap.String("proxy", address.Hex()),
			zap.String("implementation", impl.Hex()))
	}
	return impl
}

func (r *Resolver) detect(ctx context.Context, address common.Address) common.Address {
	if r.reader == nil {
		return address
	}

	// 1. EIP-1967 implementation slot.
	if impl, ok := r.storageAddress(ctx, address, implementationSlot); ok {
		return impl
	}

	// 2. EIP-1967 beacon slot, then beacon.implementation().
	if beacon, ok := r.storageAddress(ctx, address, beaconSlot); ok {
		if impl, ok := r.callAddress(ctx, beacon, implementationSelector); ok {
			return impl
		}
	}

	// 3. EIP-1167 minimal-proxy bytecode.
	if impl, ok := r.minimalProxyTarget(ctx, address); ok {
		return impl
	}

	// 4. Conventional getImplementation().
	if impl, ok := r.callAddress(ctx, address, getImplementationSelector); ok {
		return impl
	}

	// 5. Not a proxy.
	return address
}

// retryRead runs one chain read, retrying transient failures with
// doubling backoff up to maxRetries extra attempts. Context
// cancellation wins over remaining attempts.
func (r *Resolver) retryRead(ctx context.Context, read func(context.Context) error) error {
	var err error
	delay := r.backoff
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = read(ctx); err == nil {
			return nil
		}
	}
	return err
}

func (r *Resolver) storageAddress(ctx context.Context, account common.Address, slot common.Hash) (common.Address, bool) {
	var raw []byte
	err := r.retryRead(ctx, func(ctx context.Context) error {
		var err error
		raw, err = r.reader.StorageAt(ctx, account, slot)
		return err
	})
	if err != nil {
		r.logger.Debug("storage read failed", zap.String("account", account.Hex()), zap.Error(err))
		return common.Address{}, false
	}
	return addressFromWord(raw)
}

func (r *Resolver) callAddress(ctx context.Context, to common.Address, selector []byte) (common.Address, bool) {
	var raw []byte
	err := r.retryRead(ctx, func(ctx context.Context) error {
		var err error
		raw, err = r.reader.CallContract(ctx, to, selector)
		return err
	})
	if err != nil {
		r.logger.Debug("implementation call failed", zap.String("to", to.Hex()), zap.Error(err))
		return common.Address{}, false
	}
	return addressFromWord(raw)
}

func (r *Resolver) minimalProxyTarget(ctx context.Context, account common.Address) (common.Address, bool) {
	var code []byte
	err := r.retryRead(ctx, func(ctx context.Context) error {
		var err error
		code, err = r.reader.CodeAt(ctx, account)
		return err
	})
	if err != nil {
		r.logger.Debug("code read failed", zap.String("account", account.Hex()), zap.Error(err))
		return common.Address{}, false
	}
	if len(code) != len(minimalProxyPrefix)+common.AddressLength+len(minimalProxySuffix) {
		return common.Address{}, false
	}
	if !bytes.HasPrefix(code, minimalProxyPrefix) || !bytes.HasSuffix(code, minimalProxySuffix) {
		return common.Address{}, false
	}
	impl := common.BytesToAddress(code[len(minimalProxyPrefix) : len(minimalProxyPrefix)+common.AddressLength])
	if impl == (common.Address{}) {
		return common.Address{}, false
	}
	return impl, true
}

// addressFromWord extracts a non-zero address from a 32-byte word.
func addressFromWord(raw []byte) (common.Address, bool) {
	if len(raw) < common.AddressLength {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(raw[len(raw)-common.AddressLength:])
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// CacheSize reports the number of cached resolutions.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// String implements fmt.Stringer for debug output.
func (r *Resolver) String() string {
	return fmt.Sprintf("proxy.Resolver(cached=%d)", r.CacheSize())
}
