// Package imagefile stores filesystem images compactly, and restores them.
//
// Images are mostly unused blocks full of null bytes, so they compress very
// well. The best results come from run-length encoding the raw image first and
// then using gzip on the result. A freshly formatted 16 MiB image shrinks to a
// few hundred bytes this way.
//
// The run-length encoding is RLE8, the scheme used by the BMP file format. If a
// byte B occurs N times where N >= 2, B is written twice, followed by a third
// (unsigned) byte giving how many additional times B occurred. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// A run of up to 257 bytes thus takes three bytes. Longer runs are split, so a
// run of 300 "X" is encoded as `XX 255 XX 41`. Since the byte is its own escape
// sequence, a byte occurring exactly twice costs three bytes: the pair and a
// null repeat count.
package imagefile
