package imagefile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxRLE8Run is the longest run a single RLE8 triplet can encode.
const maxRLE8Run = 257

// CompressRLE8 reads `input` until it's exhausted and writes the RLE8 encoding
// of it to `output`. It returns the number of bytes written.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRunGrouper(input)
	written := int64(0)

	for {
		run, err := grouper.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("error reading input: %w", err)
		}

		for run.Length >= 2 {
			repeats := run.Length - 2
			if run.Length > maxRLE8Run {
				repeats = 255
			}

			n, err := output.Write([]byte{run.Byte, run.Byte, byte(repeats)})
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("failed to write to output: %w", err)
			}
			run.Length -= repeats + 2
		}

		if run.Length == 1 {
			n, err := output.Write([]byte{run.Byte})
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("failed to write to output: %w", err)
			}
		}
	}
}

// DecompressRLE8 reverses [CompressRLE8], returning the number of bytes
// written to `output`. Input that ends between a pair of identical bytes and
// their repeat count fails with [io.ErrUnexpectedEOF].
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	previous := -1
	written := int64(0)

	for {
		current, err := source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("error reading input: %w", err)
		}

		var expanded []byte
		if int(current) == previous {
			repeats, err := source.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf(
						"%w: missing repeat count after two %02x bytes",
						io.ErrUnexpectedEOF,
						current,
					)
				}
				return written, err
			}

			// The first byte of the pair was already written out.
			expanded = bytes.Repeat([]byte{current}, int(repeats)+1)

			// The next byte starts a new group even if it's the same value,
			// otherwise runs longer than 257 would decode wrong.
			previous = -1
		} else {
			previous = int(current)
			expanded = []byte{current}
		}

		n, err := output.Write(expanded)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
