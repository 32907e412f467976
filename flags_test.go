package easyfs_test

import (
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/stretchr/testify/assert"
)

func TestIOFlags(t *testing.T) {
	testCases := []struct {
		name     string
		flags    easyfs.IOFlags
		read     bool
		write    bool
		create   bool
		truncate bool
	}{
		{"rdonly", easyfs.O_RDONLY, true, false, false, false},
		{"wronly", easyfs.O_WRONLY, false, true, false, false},
		{"rdwr", easyfs.O_RDWR, true, true, false, false},
		{"create_wronly", easyfs.O_CREATE | easyfs.O_WRONLY, false, true, true, false},
		{"trunc_rdwr", easyfs.O_TRUNC | easyfs.O_RDWR, true, true, false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.read, tc.flags.Read(), "Read()")
			assert.Equal(t, tc.write, tc.flags.Write(), "Write()")
			assert.Equal(t, tc.create, tc.flags.Create(), "Create()")
			assert.Equal(t, tc.truncate, tc.flags.Truncate(), "Truncate()")
			assert.False(t, tc.flags.Append(), "Append()")
		})
	}
}
