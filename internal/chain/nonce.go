package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// nonceDispatcher is the single writer of the EOA's on-chain nonce. All
// submissions take their nonce from reserve, which hands out sequential
// nonces in-process; refresh re-reads from chain after a failure —
// mirroring the single-dispatcher ownership-of-mutable-state discipline the
// Trade Engine itself uses for order/position state (§4, §7).
type nonceDispatcher struct {
	mu      sync.Mutex
	rpc     RPCClient
	account common.Address
	next    uint64
	primed  bool
}

func newNonceDispatcher(rpc RPCClient, account common.Address) *nonceDispatcher {
	return &nonceDispatcher{rpc: rpc, account: account}
}

// reserve returns the next nonce to use and advances the local counter. It
// refreshes from chain on first use only; subsequent calls never touch the
// network, so concurrent callers never race on PendingNonceAt.
func (d *nonceDispatcher) reserve(ctx context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.primed {
		n, err := d.rpc.PendingNonceAt(ctx, d.account)
		if err != nil {
			return 0, fmt.Errorf("chain: pending nonce: %w", err)
		}
		d.next = n
		d.primed = true
	}
	nonce := d.next
	d.next++
	return nonce, nil
}

// refresh discards the local counter and re-primes from chain. Called once
// after a submission fails in a way consistent with a stale nonce, before
// the single retry that precedes ErrFatal.
func (d *nonceDispatcher) refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.rpc.PendingNonceAt(ctx, d.account)
	if err != nil {
		return fmt.Errorf("chain: refresh nonce: %w", err)
	}
	d.next = n
	d.primed = true
	return nil
}
