package vfs

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/efs"
	"github.com/dargueta/easyfs/layout"
)

// Stat describes an inode, in the layout the kernel hands back from fstat.
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint32
}

// File is an open file: an inode plus a stream position and the flags it was
// opened with. It emulates a subset of what [os.File] provides.
//
// A File is safe for concurrent use, though concurrent Read and Write calls
// share one position and so interleave unpredictably.
type File struct {
	mutex    sync.Mutex
	inode    *Inode
	position int64
	flags    easyfs.IOFlags
	closed   bool
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.ReaderAt        = (*File)(nil)
	_ io.WriterAt        = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// NewFile wraps an inode in a file opened with `flags`. Flags that only matter
// when opening by name, like [easyfs.O_CREATE], are ignored here.
//
// The inode stays allocated while the file is open, even if its last name is
// unlinked. The file must be closed to release it. NewFile fails with
// [easyfs.ErrNotFound] if the inode has no names left.
func NewFile(inode *Inode, flags easyfs.IOFlags) (*File, error) {
	err := inode.fs.WithLock(func(alloc *efs.Allocator) error {
		err := inode.readDisk(alloc, func(disk *layout.DiskInode) error {
			if disk.Nlinks == 0 {
				return easyfs.ErrNotFound.WithMessage(
					fmt.Sprintf("inode %d has been unlinked", inode.id),
				)
			}
			return nil
		})
		if err != nil {
			return err
		}
		alloc.AddOpenRef(inode.id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &File{inode: inode, flags: flags}, nil
}

// OpenFile opens `name` in the directory `root`.
//
//   - With [easyfs.O_CREATE] the file is created if it doesn't exist, and
//     emptied if it does.
//   - Otherwise the file must exist, and [easyfs.O_TRUNC] empties it.
func OpenFile(root *Inode, name string, flags easyfs.IOFlags) (*File, error) {
	if flags.Create() {
		inode, err := root.Find(name)
		if err == nil {
			err = inode.Clear()
			if err != nil {
				return nil, err
			}
			return NewFile(inode, flags)
		}
		if !errors.Is(err, easyfs.ErrNotFound) {
			return nil, err
		}

		inode, err = root.Create(name)
		if err != nil {
			return nil, err
		}
		return NewFile(inode, flags)
	}

	inode, err := root.Find(name)
	if err != nil {
		return nil, err
	}
	if flags.Truncate() {
		err = inode.Clear()
		if err != nil {
			return nil, err
		}
	}
	return NewFile(inode, flags)
}

// LinkAt gives the file `oldName` in `root` a second name, `newName`.
func LinkAt(root *Inode, oldName, newName string) error {
	if oldName == newName {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("can't link %q to itself", oldName),
		)
	}

	target, err := root.Find(oldName)
	if err != nil {
		return err
	}
	_, err = root.Link(target, newName)
	return err
}

// UnlinkAt removes the name `name` from `root`.
func UnlinkAt(root *Inode, name string) error {
	target, err := root.Find(name)
	if err != nil {
		return err
	}
	return root.Unlink(target, name)
}

// StatInode fills in a [Stat] for an inode.
func StatInode(inode *Inode) (Stat, error) {
	disk, err := inode.load()
	if err != nil {
		return Stat{}, err
	}

	stat := Stat{
		Ino:   uint64(inode.id),
		Nlink: disk.Nlinks,
		Mode:  easyfs.S_IFREG,
	}
	if disk.IsDir() {
		stat.Mode = easyfs.S_IFDIR
	}
	return stat, nil
}

// -----------------------------------------------------------------------------

func (file *File) checkOpen() error {
	if file.closed {
		return easyfs.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}
	return nil
}

func (file *File) Readable() bool {
	return file.flags.Read()
}

func (file *File) Writable() bool {
	return file.flags.Write()
}

// Inode returns the inode the file refers to.
func (file *File) Inode() *Inode {
	return file.inode
}

func (file *File) Read(buffer []byte) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	n, err := file.readAt(buffer, file.position)
	file.position += int64(n)
	return n, err
}

func (file *File) ReadAt(buffer []byte, offset int64) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()
	return file.readAt(buffer, offset)
}

func (file *File) readAt(buffer []byte, offset int64) (int, error) {
	err := file.checkOpen()
	if err != nil {
		return 0, err
	}
	if !file.flags.Read() {
		return 0, easyfs.ErrPermissionDenied.WithMessage("file not opened for reading")
	}
	return file.inode.ReadAt(buffer, offset)
}

// ReadAll reads from the current position to the end of the file.
func (file *File) ReadAll() ([]byte, error) {
	return io.ReadAll(file)
}

// Write writes `buffer` at the current position, or at the end of the file if it
// was opened with [easyfs.O_APPEND].
func (file *File) Write(buffer []byte) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	err := file.checkOpen()
	if err != nil {
		return 0, err
	}

	if file.flags.Append() {
		size, err := file.inode.Size()
		if err != nil {
			return 0, err
		}
		file.position = size
	}

	n, err := file.writeAt(buffer, file.position)
	file.position += int64(n)
	return n, err
}

// WriteAt writes `buffer` at `offset`. It fails with
// [easyfs.ErrPermissionDenied] if the file was opened with [easyfs.O_APPEND],
// the same as [os.File.WriteAt].
func (file *File) WriteAt(buffer []byte, offset int64) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	err := file.checkOpen()
	if err != nil {
		return 0, err
	}
	if file.flags.Append() {
		return 0, easyfs.ErrPermissionDenied.WithMessage("WriteAt on a file opened for appending")
	}
	return file.writeAt(buffer, offset)
}

func (file *File) writeAt(buffer []byte, offset int64) (int, error) {
	if !file.flags.Write() {
		return 0, easyfs.ErrPermissionDenied.WithMessage("file not opened for writing")
	}
	return file.inode.WriteAt(buffer, offset)
}

// Seek sets the position for the next Read or Write. Seeking past the end of
// the file is allowed; the file grows on the next write.
func (file *File) Seek(offset int64, whence int) (int64, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	err := file.checkOpen()
	if err != nil {
		return 0, err
	}

	var absoluteOffset int64
	switch whence {
	case io.SeekStart:
		absoluteOffset = offset
	case io.SeekCurrent:
		absoluteOffset = file.position + offset
	case io.SeekEnd:
		size, err := file.inode.Size()
		if err != nil {
			return file.position, err
		}
		absoluteOffset = size + offset
	default:
		return file.position, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid seek origin: %d", whence),
		)
	}

	if absoluteOffset < 0 {
		return file.position, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("result of Seek(offset=%d, whence=%d) is negative", offset, whence),
		)
	}

	file.position = absoluteOffset
	return absoluteOffset, nil
}

// Stat describes the file's inode.
func (file *File) Stat() (Stat, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	err := file.checkOpen()
	if err != nil {
		return Stat{}, err
	}
	return StatInode(file.inode)
}

// Close releases the file's hold on its inode and syncs the filesystem. If the
// inode was unlinked while open and this was the last file open on it, its
// content and slot are freed. The file must not be used afterwards; doing so
// fails with [easyfs.ErrInvalidFileDescriptor].
func (file *File) Close() error {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	err := file.checkOpen()
	if err != nil {
		return err
	}
	file.closed = true

	inode := file.inode
	err = inode.fs.WithLock(func(alloc *efs.Allocator) error {
		if alloc.DropOpenRef(inode.id) > 0 {
			return nil
		}

		var nlinks uint32
		err := inode.readDisk(alloc, func(disk *layout.DiskInode) error {
			nlinks = disk.Nlinks
			return nil
		})
		if err != nil || nlinks > 0 {
			return err
		}
		return inode.reclaim(alloc)
	})
	if err != nil {
		return err
	}
	return inode.fs.Sync()
}
