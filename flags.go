package easyfs

// Mode bits reported by Stat. Only the file type bits are meaningful since the
// filesystem has no permissions.
const (
	S_IFDIR = 0o040000
	S_IFREG = 0o100000
	S_IFMT  = 0o170000
)

// IOFlags is the set of flags accepted when opening a file. The values match
// the ones the kernel passes through from user space.
type IOFlags uint32

const (
	O_RDONLY IOFlags = 0
	O_WRONLY IOFlags = 1 << 0
	O_RDWR   IOFlags = 1 << 1
	O_CREATE IOFlags = 1 << 9
	O_TRUNC  IOFlags = 1 << 10
	O_APPEND IOFlags = 1 << 11
)

// Read returns true if the flags allow reading. Only [O_WRONLY] forbids it.
func (flags IOFlags) Read() bool {
	return flags&O_WRONLY == 0
}

// Write returns true if the flags allow writing.
func (flags IOFlags) Write() bool {
	return flags&(O_WRONLY|O_RDWR) != 0
}

func (flags IOFlags) Create() bool {
	return flags&O_CREATE != 0
}

func (flags IOFlags) Truncate() bool {
	return flags&O_TRUNC != 0
}

func (flags IOFlags) Append() bool {
	return flags&O_APPEND != 0
}
