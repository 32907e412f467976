package easyfs

// BlockSize is the size of a single block on the device, in bytes. It is fixed
// for every image this module reads or writes.
const BlockSize = 512

// BlockID is the index of a block on a device, beginning at 0.
type BlockID uint32

// InodeID is the index of an inode slot in the inode area. The root directory
// is always inode 0.
type InodeID uint32

// RootInodeID is the inode number of the root directory.
const RootInodeID InodeID = 0

// BlockDevice is the capability the filesystem needs from its storage: reading
// and writing whole blocks by index. Buffers passed to both methods are exactly
// [BlockSize] bytes.
//
// Implementations must be comparable (pointer types are fine) because the block
// cache uses the device as part of its lookup key.
type BlockDevice interface {
	ReadBlock(id BlockID, buffer []byte) error
	WriteBlock(id BlockID, buffer []byte) error
}

// SizedBlockDevice is a [BlockDevice] that knows how many blocks it holds.
type SizedBlockDevice interface {
	BlockDevice
	TotalBlocks() uint32
}

// Syncer is implemented by devices that buffer writes and can push them to
// stable storage on request, like [os.File.Sync].
type Syncer interface {
	Sync() error
}
