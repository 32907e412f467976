package imagefile_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/dargueta/easyfs/imagefile"
	"github.com/stretchr/testify/assert"
)

func TestRunGrouper__FirstRun(t *testing.T) {
	tests := []struct {
		Name     string
		Data     []byte
		Expected imagefile.ByteRun
	}{
		{"empty", []byte{}, imagefile.EndOfRuns},
		{"two initial", []byte{0, 0, 1, 0, 0, 0, 0}, imagefile.ByteRun{Byte: 0, Length: 2}},
		{"one byte", []byte{6, 1, 5, 20, 31}, imagefile.ByteRun{Byte: 6, Length: 1}},
		{"entire run", []byte{9, 9, 9, 9, 9, 9}, imagefile.ByteRun{Byte: 9, Length: 6}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			grouper := imagefile.NewRunGrouper(bytes.NewReader(test.Data))
			run, _ := grouper.Next()
			assert.Equal(t, test.Expected, run)
		})
	}
}

func TestRunGrouper__Sequence(t *testing.T) {
	data := []byte{1, 9, 4, 4, 4, 4, 4, 6, 6, 0, 1, 0, 0, 0}
	expected := []imagefile.ByteRun{
		{Byte: 1, Length: 1},
		{Byte: 9, Length: 1},
		{Byte: 4, Length: 5},
		{Byte: 6, Length: 2},
		{Byte: 0, Length: 1},
		{Byte: 1, Length: 1},
		{Byte: 0, Length: 3},
	}

	grouper := imagefile.NewRunGrouper(bytes.NewReader(data))
	for i, expectedRun := range expected {
		run, err := grouper.Next()
		assert.NoErrorf(t, err, "run %d", i)
		assert.Equalf(t, expectedRun, run, "run %d is wrong", i)
	}

	run, err := grouper.Next()
	assert.Equal(t, imagefile.EndOfRuns, run)
	assert.ErrorIs(t, err, io.EOF)
}
