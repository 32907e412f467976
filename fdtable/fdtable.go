// Package fdtable maps small integer file descriptors to open files, the way a
// process sees them through system calls.
//
// Every method returns an int the way a syscall would: zero or a positive value
// on success, and a negated errno code on failure. The error behind the most
// recent failure is kept and can be retrieved with [Table.Err].

package fdtable

import (
	goerrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/errors"
	"github.com/dargueta/easyfs/vfs"
)

// FirstFD is the lowest descriptor handed out. 0, 1, and 2 are left for
// standard input, output, and error, which this table doesn't manage.
const FirstFD = 3

// DefaultMaxFiles is the table size used when none is given.
const DefaultMaxFiles = 64

// Table is one process's file descriptor table. It's safe for concurrent use.
type Table struct {
	mutex    sync.Mutex
	root     *vfs.Inode
	files    []*vfs.File
	maxFiles int
	lastErr  error
}

// New creates an empty table resolving names in `root`, with room for
// `maxFiles` descriptors including the three reserved ones.
func New(root *vfs.Inode, maxFiles int) *Table {
	if maxFiles <= FirstFD {
		maxFiles = DefaultMaxFiles
	}
	return &Table{
		root:     root,
		files:    make([]*vfs.File, FirstFD, maxFiles),
		maxFiles: maxFiles,
	}
}

// Err returns the error from the last call that failed, or nil if none has.
func (table *Table) Err() error {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	return table.lastErr
}

func (table *Table) fail(err error) int {
	table.mutex.Lock()
	table.lastErr = err
	table.mutex.Unlock()
	return errors.ReturnCode(err)
}

// get returns the file open on `fd`.
func (table *Table) get(fd int) (*vfs.File, error) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	if fd < FirstFD || fd >= len(table.files) || table.files[fd] == nil {
		return nil, easyfs.ErrInvalidFileDescriptor.WithMessage(fmt.Sprintf("fd %d isn't open", fd))
	}
	return table.files[fd], nil
}

// take removes the file open on `fd` from the table and returns it.
func (table *Table) take(fd int) (*vfs.File, error) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	if fd < FirstFD || fd >= len(table.files) || table.files[fd] == nil {
		return nil, easyfs.ErrInvalidFileDescriptor.WithMessage(fmt.Sprintf("fd %d isn't open", fd))
	}
	file := table.files[fd]
	table.files[fd] = nil
	return file, nil
}

// install puts `file` in the lowest free slot and returns its descriptor.
func (table *Table) install(file *vfs.File) (int, error) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	for fd := FirstFD; fd < len(table.files); fd++ {
		if table.files[fd] == nil {
			table.files[fd] = file
			return fd, nil
		}
	}
	if len(table.files) >= table.maxFiles {
		return -1, easyfs.ErrTooManyOpenFiles.WithMessage(
			fmt.Sprintf("all %d descriptors are in use", table.maxFiles),
		)
	}
	table.files = append(table.files, file)
	return len(table.files) - 1, nil
}

// Open opens `name` with the given flags and returns the new descriptor.
func (table *Table) Open(name string, flags easyfs.IOFlags) int {
	file, err := vfs.OpenFile(table.root, name, flags)
	if err != nil {
		return table.fail(err)
	}

	fd, err := table.install(file)
	if err != nil {
		file.Close()
		return table.fail(err)
	}
	return fd
}

// Close releases `fd`. The descriptor is freed even if syncing fails.
func (table *Table) Close(fd int) int {
	file, err := table.take(fd)
	if err != nil {
		return table.fail(err)
	}

	err = file.Close()
	if err != nil {
		return table.fail(err)
	}
	return 0
}

// Read reads into `buffer` from the file's current position and returns the
// number of bytes read, which is 0 at end of file.
func (table *Table) Read(fd int, buffer []byte) int {
	file, err := table.get(fd)
	if err != nil {
		return table.fail(err)
	}

	n, err := file.Read(buffer)
	if err != nil && !goerrors.Is(err, io.EOF) {
		return table.fail(err)
	}
	return n
}

// Write writes `buffer` at the file's current position and returns the number
// of bytes written.
func (table *Table) Write(fd int, buffer []byte) int {
	file, err := table.get(fd)
	if err != nil {
		return table.fail(err)
	}

	n, err := file.Write(buffer)
	if err != nil {
		return table.fail(err)
	}
	return n
}

// Fstat fills `stat` with information about the file open on `fd`.
func (table *Table) Fstat(fd int, stat *vfs.Stat) int {
	file, err := table.get(fd)
	if err != nil {
		return table.fail(err)
	}

	result, err := file.Stat()
	if err != nil {
		return table.fail(err)
	}
	*stat = result
	return 0
}

// LinkAt makes `newName` another name for `oldName`.
func (table *Table) LinkAt(oldName, newName string) int {
	err := vfs.LinkAt(table.root, oldName, newName)
	if err != nil {
		return table.fail(err)
	}
	return 0
}

// UnlinkAt removes the name `name`.
func (table *Table) UnlinkAt(name string) int {
	err := vfs.UnlinkAt(table.root, name)
	if err != nil {
		return table.fail(err)
	}
	return 0
}

// CloseAll closes every open descriptor, e.g. when the process exits.
func (table *Table) CloseAll() int {
	table.mutex.Lock()
	open := make([]int, 0, len(table.files))
	for fd := FirstFD; fd < len(table.files); fd++ {
		if table.files[fd] != nil {
			open = append(open, fd)
		}
	}
	table.mutex.Unlock()

	result := 0
	for _, fd := range open {
		if code := table.Close(fd); code < 0 {
			result = code
		}
	}
	return result
}
