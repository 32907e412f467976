// Package blockcache provides a bounded, block-oriented cache sitting between
// the filesystem and its block device.
//
// Each cached block has its own lock, held only while a caller's read or modify
// callback runs. Blocks that are in use are pinned and never evicted; when the
// cache is full, the oldest unpinned block is written out (if dirty) and its
// slot reused.
//
// Nothing reaches the device except through eviction or [Cache.SyncAll].

package blockcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dargueta/easyfs"
	"github.com/hashicorp/go-multierror"
)

// DefaultCapacity is the number of blocks a cache holds when no capacity is
// given.
const DefaultCapacity = 16

// MinCapacity is the smallest cache a filesystem can run on. An inode's block
// stays pinned while one other block (a bitmap, index, or data block) is used.
const MinCapacity = 2

// BlockCallback is a function run against the contents of a cached block,
// beginning at some offset into it. The slice is only valid for the duration of
// the call; it must not be retained.
type BlockCallback func(data []byte) error

type cacheKey struct {
	device  easyfs.BlockDevice
	blockID easyfs.BlockID
}

// Stats gives running counters for a cache.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// Cache is a bounded set of in-memory copies of device blocks, keyed by device
// and block number.
type Cache struct {
	mutex    sync.Mutex
	capacity int
	// entries is kept in insertion order so that eviction picks the oldest
	// block that isn't in use.
	entries []*Block

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	flushes   atomic.Uint64
}

// Block is a pinned reference to one cached block. Callers must call
// [Block.Release] exactly once when they're done with it.
type Block struct {
	mutex sync.Mutex
	key   cacheKey
	data  [easyfs.BlockSize]byte
	dirty bool
	// pins is guarded by the owning cache's mutex, not the block's.
	pins  int
	cache *Cache
}

// New creates an empty cache holding at most `capacity` blocks. A capacity of
// zero or less gives [DefaultCapacity].
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make([]*Block, 0, capacity),
	}
}

// Capacity returns the maximum number of blocks the cache can hold.
func (cache *Cache) Capacity() int {
	return cache.capacity
}

// Len returns the number of blocks currently in the cache.
func (cache *Cache) Len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return len(cache.entries)
}

// Stats returns a snapshot of the cache's counters.
func (cache *Cache) Stats() Stats {
	return Stats{
		Hits:      cache.hits.Load(),
		Misses:    cache.misses.Load(),
		Evictions: cache.evictions.Load(),
		Flushes:   cache.flushes.Load(),
	}
}

// Get returns the cached copy of a block, loading it from `device` if it isn't
// present. The returned block is pinned and will not be evicted until it's
// released.
//
// If the cache is full and every block in it is pinned, this fails with
// [easyfs.ErrNoBufferSpace].
func (cache *Cache) Get(blockID easyfs.BlockID, device easyfs.BlockDevice) (*Block, error) {
	key := cacheKey{device: device, blockID: blockID}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	for _, block := range cache.entries {
		if block.key == key {
			block.pins++
			cache.hits.Add(1)
			return block, nil
		}
	}

	cache.misses.Add(1)
	if len(cache.entries) >= cache.capacity {
		err := cache.evictOne()
		if err != nil {
			return nil, err
		}
	}

	block := &Block{key: key, cache: cache}
	err := device.ReadBlock(blockID, block.data[:])
	if err != nil {
		return nil, fmt.Errorf("loading block %d into cache: %w", blockID, err)
	}

	block.pins = 1
	cache.entries = append(cache.entries, block)
	return block, nil
}

// evictOne removes the oldest unpinned block from the cache, writing it out
// first if it's dirty. The caller must hold the cache's mutex.
func (cache *Cache) evictOne() error {
	for i, victim := range cache.entries {
		if victim.pins > 0 {
			continue
		}

		// Nobody can hold the victim's lock without also holding a pin, so this
		// never blocks.
		victim.mutex.Lock()
		err := victim.flushLocked()
		victim.mutex.Unlock()
		if err != nil {
			return fmt.Errorf("evicting block %d: %w", victim.key.blockID, err)
		}

		cache.entries = append(cache.entries[:i], cache.entries[i+1:]...)
		cache.evictions.Add(1)
		return nil
	}

	return easyfs.ErrNoBufferSpace.WithMessage(
		fmt.Sprintf("all %d cached blocks are in use", cache.capacity),
	)
}

// Read is a shorthand for getting a block, reading it, and releasing it.
func (cache *Cache) Read(
	blockID easyfs.BlockID,
	device easyfs.BlockDevice,
	offset int,
	callback BlockCallback,
) error {
	block, err := cache.Get(blockID, device)
	if err != nil {
		return err
	}
	defer block.Release()
	return block.Read(offset, callback)
}

// Modify is a shorthand for getting a block, modifying it, and releasing it.
func (cache *Cache) Modify(
	blockID easyfs.BlockID,
	device easyfs.BlockDevice,
	offset int,
	callback BlockCallback,
) error {
	block, err := cache.Get(blockID, device)
	if err != nil {
		return err
	}
	defer block.Release()
	return block.Modify(offset, callback)
}

// SyncAll writes every dirty block in the cache to its device and marks it
// clean. All blocks are attempted even if some fail; the failures are returned
// together.
//
// Callers must not hold any block's lock when calling this.
func (cache *Cache) SyncAll() error {
	// Pin a snapshot of the entries so none of them get evicted out from under
	// us, then drop the cache lock before taking any block locks.
	cache.mutex.Lock()
	snapshot := make([]*Block, len(cache.entries))
	copy(snapshot, cache.entries)
	for _, block := range snapshot {
		block.pins++
	}
	cache.mutex.Unlock()

	var result *multierror.Error
	for _, block := range snapshot {
		err := block.Sync()
		if err != nil {
			result = multierror.Append(result, err)
		}
		block.Release()
	}
	return result.ErrorOrNil()
}

// -----------------------------------------------------------------------------

// ID returns the number of the block on its device.
func (block *Block) ID() easyfs.BlockID {
	return block.key.blockID
}

// Dirty returns true if the block has been modified since it was last written
// to the device.
func (block *Block) Dirty() bool {
	block.mutex.Lock()
	defer block.mutex.Unlock()
	return block.dirty
}

func checkOffset(offset int) error {
	if offset < 0 || offset > easyfs.BlockSize {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("offset %d not in range [0, %d]", offset, easyfs.BlockSize),
		)
	}
	return nil
}

// Read runs `callback` on the block's data starting at `offset`, holding the
// block's lock.
func (block *Block) Read(offset int, callback BlockCallback) error {
	err := checkOffset(offset)
	if err != nil {
		return err
	}

	block.mutex.Lock()
	defer block.mutex.Unlock()
	return callback(block.data[offset:])
}

// Modify is like [Block.Read] but marks the block dirty. The block is marked
// dirty even if the callback fails, since it may have changed the data before
// failing.
func (block *Block) Modify(offset int, callback BlockCallback) error {
	err := checkOffset(offset)
	if err != nil {
		return err
	}

	block.mutex.Lock()
	defer block.mutex.Unlock()
	block.dirty = true
	return callback(block.data[offset:])
}

// Sync writes the block to its device if it's dirty.
func (block *Block) Sync() error {
	block.mutex.Lock()
	defer block.mutex.Unlock()
	return block.flushLocked()
}

// flushLocked writes out the block if dirty. The caller must hold the block's
// lock.
func (block *Block) flushLocked() error {
	if !block.dirty {
		return nil
	}

	err := block.key.device.WriteBlock(block.key.blockID, block.data[:])
	if err != nil {
		return fmt.Errorf("flushing block %d: %w", block.key.blockID, err)
	}
	block.dirty = false
	block.cache.flushes.Add(1)
	return nil
}

// Release unpins the block. It must not be used afterwards.
func (block *Block) Release() {
	block.cache.mutex.Lock()
	defer block.cache.mutex.Unlock()

	if block.pins <= 0 {
		panic(fmt.Sprintf("block %d released more times than it was acquired", block.key.blockID))
	}
	block.pins--
}
