package imagefile

import (
	"bufio"
	"errors"
	"io"
)

// ByteRun is a single run of one byte value.
type ByteRun struct {
	Byte byte
	// Length is the number of times the byte occurs in the run, not the number
	// of times it's repeated. It's 0 only at the end of the input.
	Length int
}

// EndOfRuns is returned by [RunGrouper.Next] once the input is exhausted.
var EndOfRuns = ByteRun{}

// RunGrouper splits a byte stream into runs of identical bytes.
type RunGrouper struct {
	source *bufio.Reader
}

func NewRunGrouper(source io.Reader) RunGrouper {
	return RunGrouper{source: bufio.NewReader(source)}
}

// Next returns the next run in the stream. At the end of the input it returns
// [EndOfRuns] and [io.EOF].
func (grouper RunGrouper) Next() (ByteRun, error) {
	first, err := grouper.source.ReadByte()
	if err != nil {
		return EndOfRuns, err
	}

	length := 1
	for {
		current, err := grouper.source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return EndOfRuns, err
		}
		if current != first {
			// Put it back for the next run.
			_ = grouper.source.UnreadByte()
			break
		}
		length++
	}
	return ByteRun{Byte: first, Length: length}, nil
}
