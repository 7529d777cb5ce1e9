package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrChunkFormat   = errors.New("http1: invalid chunk format")
	ErrChunkTooLarge = errors.New("http1: chunk size exceeds limit")
)

// DefaultMaxChunkSize bounds a single chunk-size line value.
const DefaultMaxChunkSize = 16 << 20

// ChunkState is a position in the chunked body grammar.
type ChunkState int

const (
	StateReadingSize ChunkState = iota
	StateReadingData
	StateReadingDataCRLF
	StateReadingTrailers
	StateDone
)

func (s ChunkState) String() string {
	switch s {
	case StateReadingSize:
		return "ReadingSize"
	case StateReadingData:
		return "ReadingData"
	case StateReadingDataCRLF:
		return "ReadingDataCRLF"
	case StateReadingTrailers:
		return "ReadingTrailers"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ByteReader is what the decoder consumes; *bufio.Reader satisfies it.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// Decoder turns a Transfer-Encoding: chunked stream into body bytes.
// It is single-use: once Done or failed it never reads again.
type Decoder struct {
	r            ByteReader
	state        ChunkState
	remaining    int64
	maxChunk     int64
	maxLine      int
	maxTrailer   int
	trailerBytes int
	trailer      map[string][]string
	err          error
}

// NewDecoder returns a decoder reading from r. maxTrailer bounds the total
// size of trailer field lines. Zero limits select defaults.
func NewDecoder(r ByteReader, maxChunk int64, maxLine, maxTrailer int) *Decoder {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkSize
	}
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	if maxTrailer <= 0 {
		maxTrailer = DefaultMaxHeaderBytes
	}
	return &Decoder{r: r, maxChunk: maxChunk, maxLine: maxLine, maxTrailer: maxTrailer}
}

// State reports the current grammar position.
func (d *Decoder) State() ChunkState { return d.state }

// Remaining is the number of unread data bytes in the current chunk.
func (d *Decoder) Remaining() int64 { return d.remaining }

// Err returns the error that stopped the decoder, if any.
func (d *Decoder) Err() error { return d.err }

// Trailer returns trailer fields seen after the last chunk. It is nil until Done.
func (d *Decoder) Trailer() map[string][]string { return d.trailer }

// Read fills p with body bytes. It returns (0, io.EOF) once the terminating
// chunk and trailers are consumed, and keeps doing so without further I/O.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	for {
		switch d.state {
		case StateDone:
			return 0, io.EOF

		case StateReadingSize:
			size, err := d.readSize()
			if err != nil {
				return 0, d.fail(err)
			}
			if size == 0 {
				d.state = StateReadingTrailers
			} else {
				d.remaining = size
				d.state = StateReadingData
			}

		case StateReadingData:
			if len(p) == 0 {
				return 0, nil
			}
			want := int64(len(p))
			if want > d.remaining {
				want = d.remaining
			}
			n, err := d.r.Read(p[:want])
			d.remaining -= int64(n)
			if d.remaining == 0 {
				d.state = StateReadingDataCRLF
			}
			if err != nil {
				if err == io.EOF {
					if n > 0 {
						return n, nil
					}
					err = io.ErrUnexpectedEOF
				}
				return n, d.fail(err)
			}
			if n > 0 {
				return n, nil
			}

		case StateReadingDataCRLF:
			if err := d.expectCRLF(); err != nil {
				return 0, d.fail(err)
			}
			d.state = StateReadingSize

		case StateReadingTrailers:
			if err := d.readTrailers(); err != nil {
				return 0, d.fail(err)
			}
			d.state = StateDone
		}
	}
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}

func (d *Decoder) readSize() (int64, error) {
	line, err := ReadLine(d.r, d.maxLine)
	if err != nil {
		return 0, eofIsUnexpected(err)
	}
	return ParseChunkSize(line, d.maxChunk)
}

// ParseChunkSize parses a chunk-size line, ignoring any ";ext" suffix.
func ParseChunkSize(line string, max int64) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return 0, ErrChunkFormat
	}
	var n int64
	for i := 0; i < len(line); i++ {
		v, ok := unhex(line[i])
		if !ok {
			return 0, ErrChunkFormat
		}
		if n > max>>4 {
			return 0, ErrChunkTooLarge
		}
		n = n<<4 | int64(v)
		if n > max {
			return 0, ErrChunkTooLarge
		}
	}
	return n, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (d *Decoder) expectCRLF() error {
	b1, err := d.r.ReadByte()
	if err != nil {
		return eofIsUnexpected(err)
	}
	b2, err := d.r.ReadByte()
	if err != nil {
		return eofIsUnexpected(err)
	}
	if b1 != '\r' || b2 != '\n' {
		return fmt.Errorf("%w: expected CRLF after chunk data, got %q%q", ErrChunkFormat, b1, b2)
	}
	return nil
}

func (d *Decoder) readTrailers() error {
	for {
		line, err := ReadLine(d.r, d.maxLine)
		if err != nil {
			return eofIsUnexpected(err)
		}
		if line == "" {
			return nil
		}
		d.trailerBytes += len(line)
		if d.trailerBytes > d.maxTrailer {
			return ErrHeaderTooLarge
		}
		k, v, err := parseFieldLine(line)
		if err != nil {
			return err
		}
		if d.trailer == nil {
			d.trailer = make(map[string][]string)
		}
		addHeader(d.trailer, k, v)
	}
}

func eofIsUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ChunkedWriter frames writes as HTTP/1.1 chunks. Close writes the
// terminating zero-length chunk; it does not close the underlying writer.
type ChunkedWriter struct {
	W *bufio.Writer
}

func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	return WriteChunk(cw.W, p)
}

func (cw *ChunkedWriter) Close() error {
	return EndChunked(cw.W)
}
