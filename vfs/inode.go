// Package vfs provides handles for files and directories on a mounted
// filesystem.
//
// An [Inode] is only a locator: the inode number, where its record lives, and
// the filesystem it belongs to. It caches nothing, so any number of handles to
// the same inode can exist at once and none of them go stale. Every operation
// takes the filesystem lock for its whole duration and reads the on-disk record
// fresh through the block cache.

package vfs

import (
	"fmt"
	"io"
	"math"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/efs"
	"github.com/dargueta/easyfs/layout"
	"github.com/sirupsen/logrus"
)

// Inode is a handle to a file or directory.
type Inode struct {
	id          easyfs.InodeID
	blockID     easyfs.BlockID
	blockOffset int
	fs          *efs.FileSystem
}

func newInode(alloc *efs.Allocator, fs *efs.FileSystem, id easyfs.InodeID) *Inode {
	blockID, offset := alloc.DiskInodePos(id)
	return &Inode{id: id, blockID: blockID, blockOffset: offset, fs: fs}
}

// Root returns a handle to the root directory of `fs`.
func Root(fs *efs.FileSystem) (*Inode, error) {
	var root *Inode
	err := fs.WithLock(func(alloc *efs.Allocator) error {
		root = newInode(alloc, fs, easyfs.RootInodeID)
		return root.readDisk(alloc, func(disk *layout.DiskInode) error {
			if !disk.IsDir() {
				return easyfs.ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf("root inode is a %s, not a directory", disk.Type),
				)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

// readDisk runs `callback` on a copy of this inode's on-disk record. The caller
// must hold the filesystem lock.
func (inode *Inode) readDisk(alloc *efs.Allocator, callback func(disk *layout.DiskInode) error) error {
	return layout.ReadDiskInode(alloc.Storage(), inode.blockID, inode.blockOffset, callback)
}

// modifyDisk is like readDisk but writes the record back afterwards.
//
// The callback must not touch any other inode's record: it may share this
// inode's block, and that block is locked while the callback runs.
func (inode *Inode) modifyDisk(alloc *efs.Allocator, callback func(disk *layout.DiskInode) error) error {
	return layout.ModifyDiskInode(alloc.Storage(), inode.blockID, inode.blockOffset, callback)
}

func (inode *Inode) assertDirectory(disk *layout.DiskInode, operation string) {
	if !disk.IsDir() {
		panic(fmt.Sprintf("%s: inode %d is a %s, not a directory", operation, inode.id, disk.Type))
	}
}

// -----------------------------------------------------------------------------
// Directory content

// readEntries decodes every entry in a directory, in storage order.
func readEntries(alloc *efs.Allocator, disk *layout.DiskInode) ([]layout.DirEntry, error) {
	if disk.Size%layout.DirEntrySize != 0 {
		return nil, easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"directory size %d isn't a multiple of %d", disk.Size, layout.DirEntrySize,
			),
		)
	}

	raw := make([]byte, disk.Size)
	n, err := disk.ReadAt(0, raw, alloc.Storage())
	if err != nil {
		return nil, err
	}
	if n != len(raw) {
		return nil, easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("read %d bytes of a %d-byte directory", n, len(raw)),
		)
	}

	entries := make([]layout.DirEntry, len(raw)/layout.DirEntrySize)
	for i := range entries {
		err = entries[i].UnmarshalBinary(raw[i*layout.DirEntrySize:])
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func indexOfName(entries []layout.DirEntry, name string) int {
	for i := range entries {
		if entries[i].Name() == name {
			return i
		}
	}
	return -1
}

// lookup reads this directory and returns its entries along with the index of
// `name` in them, or -1 if it's absent.
func (inode *Inode) lookup(alloc *efs.Allocator, name, operation string) ([]layout.DirEntry, int, error) {
	var entries []layout.DirEntry
	err := inode.readDisk(alloc, func(disk *layout.DiskInode) error {
		inode.assertDirectory(disk, operation)

		var readErr error
		entries, readErr = readEntries(alloc, disk)
		return readErr
	})
	if err != nil {
		return nil, -1, err
	}
	return entries, indexOfName(entries, name), nil
}

// grow extends `disk` to `newSize` bytes, allocating whatever blocks that
// takes. If there isn't enough space, the inode is left as it was.
func grow(alloc *efs.Allocator, disk *layout.DiskInode, newSize uint64) error {
	if newSize <= uint64(disk.Size) {
		return nil
	}
	if newSize > layout.MaxFileSize {
		return easyfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("%d bytes exceeds the limit of %d", newSize, layout.MaxFileSize),
		)
	}

	blocks, err := alloc.AllocDataBlocks(disk.BlocksNumNeeded(uint32(newSize)))
	if err != nil {
		return err
	}
	return disk.IncreaseSize(uint32(newSize), blocks, alloc.Storage())
}

// appendEntry adds an entry to the end of this directory.
func (inode *Inode) appendEntry(alloc *efs.Allocator, entry layout.DirEntry) error {
	encoded, err := entry.MarshalBinary()
	if err != nil {
		return err
	}

	return inode.modifyDisk(alloc, func(disk *layout.DiskInode) error {
		tail := disk.Size
		err := grow(alloc, disk, uint64(tail)+layout.DirEntrySize)
		if err != nil {
			return err
		}
		_, err = disk.WriteAt(int(tail), encoded, alloc.Storage())
		return err
	})
}

// removeEntry deletes entry `index` from this directory by moving the last entry
// into its place and shrinking the directory by one entry. Order isn't
// preserved.
func (inode *Inode) removeEntry(alloc *efs.Allocator, entries []layout.DirEntry, index int) error {
	last := len(entries) - 1
	var freed []easyfs.BlockID

	err := inode.modifyDisk(alloc, func(disk *layout.DiskInode) error {
		store := alloc.Storage()

		if index != last {
			moved, err := entries[last].MarshalBinary()
			if err != nil {
				return err
			}
			_, err = disk.WriteAt(index*layout.DirEntrySize, moved, store)
			if err != nil {
				return err
			}
		}

		empty := layout.EmptyDirEntry()
		blank, err := empty.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = disk.WriteAt(last*layout.DirEntrySize, blank, store)
		if err != nil {
			return err
		}

		freed, err = disk.DecreaseSize(disk.Size-layout.DirEntrySize, store)
		return err
	})
	if err != nil {
		return err
	}
	return alloc.DeallocDataBlocks(freed)
}

// reclaim frees the content and the slot of an inode with no links left and no
// open files.
func (inode *Inode) reclaim(alloc *efs.Allocator) error {
	var freed []easyfs.BlockID
	err := inode.modifyDisk(alloc, func(disk *layout.DiskInode) error {
		if disk.Nlinks != 0 {
			panic(fmt.Sprintf("reclaiming inode %d, which still has %d links", inode.id, disk.Nlinks))
		}

		var clearErr error
		freed, clearErr = disk.ClearSize(alloc.Storage())
		return clearErr
	})
	if err != nil {
		return err
	}

	err = alloc.DeallocDataBlocks(freed)
	if err != nil {
		return err
	}
	err = alloc.DeallocInode(inode.id)
	if err != nil {
		return err
	}

	alloc.Logger().WithFields(logrus.Fields{
		"inode":  inode.id,
		"blocks": len(freed),
	}).Info("reclaimed inode")
	return nil
}

// -----------------------------------------------------------------------------
// Directory operations

// Find looks up `name` in this directory. It fails with [easyfs.ErrNotFound] if
// there's no such entry.
//
// This must only be called on a directory.
func (inode *Inode) Find(name string) (*Inode, error) {
	var found *Inode
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		entries, index, err := inode.lookup(alloc, name, "find")
		if err != nil {
			return err
		}
		if index < 0 {
			return easyfs.ErrNotFound.WithMessage(name)
		}
		found = newInode(alloc, inode.fs, entries[index].InodeID())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Create makes a new, empty file called `name` in this directory and returns a
// handle to it. It fails with [easyfs.ErrExists] if the name is taken.
//
// This must only be called on a directory.
func (inode *Inode) Create(name string) (*Inode, error) {
	err := layout.ValidateName(name)
	if err != nil {
		return nil, err
	}

	var created *Inode
	err = inode.fs.WithLock(func(alloc *efs.Allocator) error {
		_, index, err := inode.lookup(alloc, name, "create")
		if err != nil {
			return err
		}
		if index >= 0 {
			return easyfs.ErrExists.WithMessage(name)
		}

		newID, err := alloc.AllocInode()
		if err != nil {
			return err
		}
		created = newInode(alloc, inode.fs, newID)

		err = created.modifyDisk(alloc, func(disk *layout.DiskInode) error {
			disk.Initialize(layout.TypeFile)
			return nil
		})
		if err == nil {
			entry, _ := layout.NewDirEntry(name, newID)
			err = inode.appendEntry(alloc, entry)
		}
		if err != nil {
			if deallocErr := alloc.DeallocInode(newID); deallocErr != nil {
				alloc.Logger().WithError(deallocErr).WithField("inode", newID).Error("leaked inode")
			}
			return err
		}

		alloc.Logger().WithFields(logrus.Fields{
			"name":  name,
			"inode": newID,
			"dir":   inode.id,
		}).Info("created file")
		return alloc.SyncAll()
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Link adds an entry `newName` in this directory pointing to `target`, and
// returns a handle to `target`. It fails with [easyfs.ErrExists] if the name is
// taken, and with [easyfs.ErrNotPermitted] if `target` is a directory.
// A `target` that has already lost its last name gives [easyfs.ErrNotFound],
// and one whose link count can't go any higher gives [easyfs.ErrTooManyLinks].
//
// This must only be called on a directory.
func (inode *Inode) Link(target *Inode, newName string) (*Inode, error) {
	if target.fs != inode.fs {
		return nil, easyfs.ErrInvalidArgument.WithMessage("can't link across filesystems")
	}

	err := layout.ValidateName(newName)
	if err != nil {
		return nil, err
	}

	err = inode.fs.WithLock(func(alloc *efs.Allocator) error {
		_, index, err := inode.lookup(alloc, newName, "link")
		if err != nil {
			return err
		}
		if index >= 0 {
			return easyfs.ErrExists.WithMessage(newName)
		}

		err = target.readDisk(alloc, func(disk *layout.DiskInode) error {
			if disk.IsDir() {
				return easyfs.ErrNotPermitted.WithMessage(
					fmt.Sprintf("inode %d is a directory and can't be hard linked", target.id),
				)
			}
			// Unlinked for good, or only kept alive by open files. Either way
			// it can't be given a name again.
			if disk.Nlinks == 0 {
				return easyfs.ErrNotFound.WithMessage(
					fmt.Sprintf("inode %d has been unlinked", target.id),
				)
			}
			if disk.Nlinks == math.MaxUint32 {
				return easyfs.ErrTooManyLinks.WithMessage(
					fmt.Sprintf("inode %d already has %d links", target.id, disk.Nlinks),
				)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Add the entry first so that running out of space doesn't leave the
		// link count too high.
		entry, _ := layout.NewDirEntry(newName, target.id)
		err = inode.appendEntry(alloc, entry)
		if err != nil {
			return err
		}

		var nlinks uint32
		err = target.modifyDisk(alloc, func(disk *layout.DiskInode) error {
			disk.Nlinks++
			nlinks = disk.Nlinks
			return nil
		})
		if err != nil {
			return err
		}

		alloc.Logger().WithFields(logrus.Fields{
			"name":  newName,
			"inode": target.id,
			"dir":   inode.id,
			"links": nlinks,
		}).Info("linked file")
		return alloc.SyncAll()
	})
	if err != nil {
		return nil, err
	}
	return &Inode{id: target.id, blockID: target.blockID, blockOffset: target.blockOffset, fs: target.fs}, nil
}

// Unlink removes the entry `name` from this directory and drops a link from
// `target`, which must be the inode `name` refers to. When the last link goes,
// the file's content and inode are freed, or once the last [File] open on it
// is closed if there are any.
//
// This fails with [easyfs.ErrNotFound] if `name` doesn't exist, and panics if it
// refers to some inode other than `target`.
//
// This must only be called on a directory.
func (inode *Inode) Unlink(target *Inode, name string) error {
	return inode.fs.WithLock(func(alloc *efs.Allocator) error {
		entries, index, err := inode.lookup(alloc, name, "unlink")
		if err != nil {
			return err
		}
		if index < 0 {
			return easyfs.ErrNotFound.WithMessage(name)
		}
		if entries[index].InodeID() != target.id {
			panic(
				fmt.Sprintf(
					"unlink: %q refers to inode %d, not %d",
					name,
					entries[index].InodeID(),
					target.id,
				),
			)
		}

		// Drop the entry before the link so a failure part way through leaks the
		// inode rather than leaving an entry to a freed one.
		err = inode.removeEntry(alloc, entries, index)
		if err != nil {
			return err
		}

		var nlinks uint32
		err = target.modifyDisk(alloc, func(disk *layout.DiskInode) error {
			if disk.Nlinks == 0 {
				return easyfs.ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf("inode %d has an entry but no links", target.id),
				)
			}
			disk.Nlinks--
			nlinks = disk.Nlinks
			return nil
		})
		if err != nil {
			return err
		}

		fields := logrus.Fields{
			"name":  name,
			"inode": target.id,
			"dir":   inode.id,
			"links": nlinks,
		}
		if nlinks == 0 {
			openFiles := alloc.OpenRefs(target.id)
			if openFiles > 0 {
				alloc.Logger().WithFields(fields).WithField("openFiles", openFiles).
					Info("unlinked open file, reclaiming on last close")
			} else {
				err = target.reclaim(alloc)
				if err != nil {
					return err
				}
			}
		}

		alloc.Logger().WithFields(fields).Info("unlinked file")
		return alloc.SyncAll()
	})
}

// Ls returns the names of every entry in this directory, in storage order.
// Removing an entry moves the last one into its place, so this isn't the order
// they were created in.
//
// This must only be called on a directory.
func (inode *Inode) Ls() ([]string, error) {
	var names []string
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		entries, _, err := inode.lookup(alloc, "", "ls")
		if err != nil {
			return err
		}

		names = make([]string, len(entries))
		for i := range entries {
			names[i] = entries[i].Name()
		}
		return nil
	})
	return names, err
}

// -----------------------------------------------------------------------------
// Content

// ReadAt implements [io.ReaderAt]. Reading past the end returns [io.EOF] along
// with however many bytes could be read.
func (inode *Inode) ReadAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, easyfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	n := 0
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		return inode.readDisk(alloc, func(disk *layout.DiskInode) error {
			if offset >= int64(disk.Size) {
				return nil
			}

			var readErr error
			n, readErr = disk.ReadAt(int(offset), buffer, alloc.Storage())
			return readErr
		})
	})
	if err == nil && n < len(buffer) {
		err = io.EOF
	}
	return n, err
}

// WriteAt implements [io.WriterAt]. The file grows as needed to hold the data;
// any gap between the old end and `offset` reads back as zeroes.
//
// If the filesystem runs out of space, this fails with
// [easyfs.ErrNoSpaceOnDevice] and nothing is written.
func (inode *Inode) WriteAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, easyfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	end := uint64(offset) + uint64(len(buffer))
	if end > layout.MaxFileSize {
		return 0, easyfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"writing %d bytes at offset %d exceeds the limit of %d",
				len(buffer),
				offset,
				layout.MaxFileSize,
			),
		)
	}

	n := 0
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		err := inode.modifyDisk(alloc, func(disk *layout.DiskInode) error {
			growErr := grow(alloc, disk, end)
			if growErr != nil {
				return growErr
			}

			var writeErr error
			n, writeErr = disk.WriteAt(int(offset), buffer, alloc.Storage())
			return writeErr
		})
		if err != nil {
			return err
		}
		return alloc.SyncAll()
	})
	return n, err
}

// Clear truncates a file to zero bytes and frees all its blocks. Directories
// can't be cleared, since that would orphan whatever they contain.
func (inode *Inode) Clear() error {
	return inode.fs.WithLock(func(alloc *efs.Allocator) error {
		var freed []easyfs.BlockID
		err := inode.modifyDisk(alloc, func(disk *layout.DiskInode) error {
			if disk.IsDir() {
				return easyfs.ErrIsADirectory.WithMessage(
					fmt.Sprintf("can't clear directory inode %d", inode.id),
				)
			}

			var clearErr error
			freed, clearErr = disk.ClearSize(alloc.Storage())
			return clearErr
		})
		if err != nil {
			return err
		}

		err = alloc.DeallocDataBlocks(freed)
		if err != nil {
			return err
		}
		return alloc.SyncAll()
	})
}

// -----------------------------------------------------------------------------
// Introspection

// load returns a copy of the inode's on-disk record.
func (inode *Inode) load() (layout.DiskInode, error) {
	var record layout.DiskInode
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		return inode.readDisk(alloc, func(disk *layout.DiskInode) error {
			record = *disk
			return nil
		})
	})
	return record, err
}

func (inode *Inode) IsDir() (bool, error) {
	disk, err := inode.load()
	return disk.IsDir(), err
}

func (inode *Inode) IsFile() (bool, error) {
	disk, err := inode.load()
	return disk.IsFile(), err
}

// LinkNums returns the number of directory entries referring to this inode.
func (inode *Inode) LinkNums() (uint32, error) {
	disk, err := inode.load()
	return disk.Nlinks, err
}

// Size returns the size of the content, in bytes.
func (inode *Inode) Size() (int64, error) {
	disk, err := inode.load()
	return int64(disk.Size), err
}

// InodeID returns the inode number. It never changes for the life of the
// handle.
func (inode *Inode) InodeID() easyfs.InodeID {
	return inode.id
}

// FileSystem returns the filesystem the inode is on.
func (inode *Inode) FileSystem() *efs.FileSystem {
	return inode.fs
}
