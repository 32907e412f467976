package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dargueta/easyfs"
	"github.com/noxer/bytewriter"
)

const (
	// DirEntrySize is the size of one encoded directory entry, in bytes.
	DirEntrySize = 32
	// NameLengthLimit is the longest a file name can be, in bytes. The name
	// field has one extra byte so a full-length name is still null-terminated.
	NameLengthLimit = 27
)

// DirEntry is one record in a directory's content: a name and the inode it
// refers to. A directory is nothing more than an array of these.
type DirEntry struct {
	RawName [NameLengthLimit + 1]byte
	Inode   uint32
}

// ValidateName checks that `name` can be stored in a directory entry.
func ValidateName(name string) error {
	if name == "" {
		return easyfs.ErrInvalidArgument.WithMessage("file name can't be empty")
	}
	if len(name) > NameLengthLimit {
		return easyfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf("%q is %d bytes, limit is %d", name, len(name), NameLengthLimit),
		)
	}
	if strings.ContainsAny(name, "\x00/") {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q contains a null byte or a slash", name),
		)
	}
	return nil
}

// NewDirEntry creates an entry for `name` pointing to inode `inodeID`.
func NewDirEntry(name string, inodeID easyfs.InodeID) (DirEntry, error) {
	err := ValidateName(name)
	if err != nil {
		return DirEntry{}, err
	}

	entry := DirEntry{Inode: uint32(inodeID)}
	copy(entry.RawName[:], name)
	return entry, nil
}

// EmptyDirEntry returns the all-zero entry.
func EmptyDirEntry() DirEntry {
	return DirEntry{}
}

// Name returns the entry's name, without padding.
func (entry *DirEntry) Name() string {
	end := bytes.IndexByte(entry.RawName[:], 0)
	if end < 0 {
		end = len(entry.RawName)
	}
	return string(entry.RawName[:end])
}

func (entry *DirEntry) InodeID() easyfs.InodeID {
	return easyfs.InodeID(entry.Inode)
}

// IsEmpty returns true for the all-zero entry.
func (entry *DirEntry) IsEmpty() bool {
	return *entry == (DirEntry{})
}

// MarshalBinary implements [encoding.BinaryMarshaler]. The result is always
// [DirEntrySize] bytes.
func (entry *DirEntry) MarshalBinary() ([]byte, error) {
	buffer := make([]byte, DirEntrySize)
	err := binary.Write(bytewriter.New(buffer), binary.LittleEndian, entry)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// UnmarshalBinary implements [encoding.BinaryUnmarshaler].
func (entry *DirEntry) UnmarshalBinary(data []byte) error {
	if len(data) < DirEntrySize {
		return easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory entry needs %d bytes, got %d", DirEntrySize, len(data)),
		)
	}
	return binary.Read(bytes.NewReader(data[:DirEntrySize]), binary.LittleEndian, entry)
}
