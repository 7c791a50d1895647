package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// approvalKey identifies a (token, spender) allowance the engine has already
// granted on-chain, so repeated splits/merges on the same token don't re-send
// a redundant approve transaction (grounds the approve-then-execute pattern
// with a local cache instead of querying allowance() every cycle).
type approvalKey struct {
	token   common.Address
	spender common.Address
}

type approvalCache struct {
	mu       sync.Mutex
	approved map[approvalKey]bool
}

func newApprovalCache() *approvalCache {
	return &approvalCache{approved: make(map[approvalKey]bool)}
}

func (c *approvalCache) isApproved(token, spender common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approved[approvalKey{token, spender}]
}

func (c *approvalCache) markApproved(token, spender common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved[approvalKey{token, spender}] = true
}

// invalidate drops a cached approval so the next batch for that pair
// re-approves. Nothing in this package calls it; a failed batch leaves the
// cache as it was.
func (c *approvalCache) invalidate(token, spender common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, approvalKey{token, spender})
}
