package imagefile

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Compress encodes `input` with RLE8 and gzips the result into `output`. It
// returns the number of RLE8-encoded bytes passed to gzip; the compressed size
// isn't tracked.
func Compress(input io.Reader, output io.Writer) (int64, error) {
	// Images are small enough that the best compression level costs nothing
	// noticeable.
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := CompressRLE8(input, gzWriter)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	return n, gzWriter.Close()
}

// Decompress reverses [Compress], returning the size of the raw image written
// to `output`.
func Decompress(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressToBytes is [Decompress] with the raw image returned in a new slice.
func DecompressToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	_, err := Decompress(input, &buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
