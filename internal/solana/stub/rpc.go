// Package stub provides in-memory chain clients for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-swap-indexer/internal/solana"
)

// RPCClient implements solana.ChainClient and solana.AccountReader for testing.
type RPCClient struct {
	mu       sync.Mutex
	slot     uint64
	blocks   map[uint64]*solana.Block
	skipped  map[uint64]bool
	errs     map[uint64]error
	accounts map[string]*solana.AccountInfo
	calls    map[uint64]int
}

var (
	_ solana.ChainClient   = (*RPCClient)(nil)
	_ solana.AccountReader = (*RPCClient)(nil)
)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		blocks:   make(map[uint64]*solana.Block),
		skipped:  make(map[uint64]bool),
		errs:     make(map[uint64]error),
		accounts: make(map[string]*solana.AccountInfo),
		calls:    make(map[uint64]int),
	}
}

// SetSlot sets the value returned by GetSlot.
func (c *RPCClient) SetSlot(slot uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
}

// AddBlock stores a block. Its Slot field is the lookup key.
func (c *RPCClient) AddBlock(block *solana.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[block.Slot] = block
}

// Skip marks slots as having no block.
func (c *RPCClient) Skip(slots ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range slots {
		c.skipped[s] = true
	}
}

// FailSlot makes GetBlock return err for slot.
func (c *RPCClient) FailSlot(slot uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[slot] = err
}

// SetAccount stores account data for GetAccountInfo.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[pubkey] = info
}

// Calls returns how many times GetBlock was called for slot.
func (c *RPCClient) Calls(slot uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[slot]
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}

// GetBlock returns the stored block. Slots without a block and not marked
// skipped return a fatal error.
func (c *RPCClient) GetBlock(ctx context.Context, slot uint64) (*solana.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[slot]++

	if err, ok := c.errs[slot]; ok {
		return nil, err
	}
	if c.skipped[slot] {
		return nil, &solana.RPCError{Kind: solana.KindSkippedSlot, Code: -32007, Message: fmt.Sprintf("Slot %d was skipped", slot)}
	}
	block, ok := c.blocks[slot]
	if !ok {
		return nil, &solana.RPCError{Kind: solana.KindFatal, Code: -32602, Message: fmt.Sprintf("no block for slot %d", slot)}
	}
	return block, nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[pubkey], nil
}
