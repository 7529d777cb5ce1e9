package http1

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records every call that reaches the underlying stream.
type countingReader struct {
	br    *bufio.Reader
	calls int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.calls++
	return c.br.Read(p)
}

func (c *countingReader) ReadByte() (byte, error) {
	c.calls++
	return c.br.ReadByte()
}

func newDecoder(raw string) *Decoder {
	return NewDecoder(bufio.NewReader(strings.NewReader(raw)), 0, 0, 0)
}

func TestDecoder_Wikipedia(t *testing.T) {
	d := newDecoder("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	b, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", string(b))
	assert.Equal(t, StateDone, d.State())
}

func TestDecoder_StateProgression(t *testing.T) {
	d := newDecoder("4\r\nWiki\r\n0\r\n\r\n")
	assert.Equal(t, StateReadingSize, d.State())

	buf := make([]byte, 2)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Wi", string(buf[:n]))
	assert.Equal(t, StateReadingData, d.State())
	assert.EqualValues(t, 2, d.Remaining())

	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ki", string(buf[:n]))
	assert.Equal(t, StateReadingDataCRLF, d.State())

	n, err = d.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, StateDone, d.State())
}

func TestDecoder_RoundTrip(t *testing.T) {
	sets := [][]string{
		{"a"},
		{"hello", " ", "world"},
		{"", "x", "", "yz"},
		{strings.Repeat("A", 4096), strings.Repeat("b", 17), "\r\n0\r\n\r\n"},
		{},
	}
	for _, chunks := range sets {
		var wire bytes.Buffer
		bw := bufio.NewWriter(&wire)
		cw := &ChunkedWriter{W: bw}
		var want strings.Builder
		for _, c := range chunks {
			_, err := cw.Write([]byte(c))
			require.NoError(t, err)
			want.WriteString(c)
		}
		require.NoError(t, cw.Close())
		require.NoError(t, bw.Flush())

		for _, bufSize := range []int{1, 3, 64, 8192} {
			d := NewDecoder(bufio.NewReader(bytes.NewReader(wire.Bytes())), 0, 0, 0)
			var got bytes.Buffer
			buf := make([]byte, bufSize)
			for {
				n, err := d.Read(buf)
				got.Write(buf[:n])
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
			}
			assert.Equal(t, want.String(), got.String(), "chunks=%q buf=%d", chunks, bufSize)
		}
	}
}

func TestDecoder_EOFIdempotent(t *testing.T) {
	cr := &countingReader{br: bufio.NewReader(strings.NewReader("3\r\nabc\r\n0\r\n\r\n"))}
	d := NewDecoder(cr, 0, 0, 0)
	_, err := io.ReadAll(d)
	require.NoError(t, err)
	calls := cr.calls
	for i := 0; i < 3; i++ {
		n, err := d.Read(make([]byte, 8))
		assert.Equal(t, 0, n)
		assert.Equal(t, io.EOF, err)
	}
	assert.Equal(t, calls, cr.calls)
}

func TestDecoder_Extensions(t *testing.T) {
	d := newDecoder("4;name=value\r\nWiki\r\n0;last\r\n\r\n")
	b, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "Wiki", string(b))
}

func TestDecoder_Trailers(t *testing.T) {
	d := newDecoder("2\r\nok\r\n0\r\nExpires: never\r\nx-sum: 1\r\n\r\n")
	b, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
	assert.Equal(t, []string{"never"}, d.Trailer()["Expires"])
	assert.Equal(t, []string{"1"}, d.Trailer()["X-Sum"])
}

func TestDecoder_InvalidHex(t *testing.T) {
	d := newDecoder("ZZ\r\n")
	n, err := d.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrChunkFormat)
	_, again := d.Read(make([]byte, 8))
	assert.ErrorIs(t, again, ErrChunkFormat)
	assert.Equal(t, StateReadingSize, d.State())
}

func TestDecoder_EmptySizeLine(t *testing.T) {
	_, err := io.ReadAll(newDecoder("\r\n"))
	assert.ErrorIs(t, err, ErrChunkFormat)
}

func TestDecoder_TooLarge(t *testing.T) {
	_, err := io.ReadAll(newDecoder("FFFFFFFFFFFFFFFFFFFFFFFF\r\n"))
	assert.ErrorIs(t, err, ErrChunkTooLarge)

	d := NewDecoder(bufio.NewReader(strings.NewReader("11\r\n")), 0x10, 0, 0)
	_, err = d.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestDecoder_SizeNeverWrapsUnderMaxCap(t *testing.T) {
	for _, in := range []string{"FFFFFFFFFFFFFFFF", "8000000000000000", "10000000000000000"} {
		n, err := ParseChunkSize(in, math.MaxInt64)
		assert.ErrorIs(t, err, ErrChunkTooLarge, in)
		assert.Equal(t, int64(0), n, in)
	}
	n, err := ParseChunkSize("7FFFFFFFFFFFFFFF", math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	d := NewDecoder(bufio.NewReader(strings.NewReader("FFFFFFFFFFFFFFFF\r\nabc")), math.MaxInt64, 0, 0)
	assert.NotPanics(t, func() {
		_, err = d.Read(make([]byte, 8))
	})
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestDecoder_TrailerCap(t *testing.T) {
	raw := "1\r\na\r\n0\r\nX-Checksum: " + strings.Repeat("f", 64) + "\r\n\r\n"
	d := NewDecoder(bufio.NewReader(strings.NewReader(raw)), 0, 0, 32)
	_, err := io.ReadAll(d)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)

	d = NewDecoder(bufio.NewReader(strings.NewReader(raw)), 0, 0, 128)
	b, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "a", string(b))
	assert.Len(t, d.Trailer()["X-Checksum"], 1)
}

func TestDecoder_MissingCRLF(t *testing.T) {
	_, err := io.ReadAll(newDecoder("4\r\nWikiXX5\r\npedia\r\n0\r\n\r\n"))
	assert.ErrorIs(t, err, ErrChunkFormat)
}

func TestDecoder_Truncated(t *testing.T) {
	_, err := io.ReadAll(newDecoder("4\r\nWi"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = io.ReadAll(newDecoder("4\r\nWiki\r\n"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseChunkSize(t *testing.T) {
	cases := map[string]int64{"0": 0, "a": 10, "FF": 255, "1f ; x": 31, "10\t": 16}
	for in, want := range cases {
		got, err := ParseChunkSize(in, DefaultMaxChunkSize)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "-1", "0x10", " 5", "g"} {
		_, err := ParseChunkSize(in, DefaultMaxChunkSize)
		assert.ErrorIs(t, err, ErrChunkFormat, in)
	}
}

func TestWriteRequestHead_SortedHeaders(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	hdr := map[string][]string{"X-B": {"2"}, "Host": {"example.com"}, "X-A": {"1", "1b"}}
	require.NoError(t, WriteRequestHead(bw, "GET", "/p?q=1", hdr))
	require.NoError(t, bw.Flush())
	assert.Equal(t, "GET /p?q=1 HTTP/1.1\r\nHost: example.com\r\nX-A: 1\r\nX-A: 1b\r\nX-B: 2\r\n\r\n", out.String())
}

func TestValidateRequestHead(t *testing.T) {
	assert.NoError(t, ValidateRequestHead("GET", "/", map[string][]string{"A": {"b"}}))
	assert.ErrorIs(t, ValidateRequestHead("G ET", "/", nil), ErrInvalidMethod)
	assert.ErrorIs(t, ValidateRequestHead("GET", "/a b", nil), ErrInvalidTarget)
	assert.ErrorIs(t, ValidateRequestHead("GET", "/", map[string][]string{"Bad Name": {"v"}}), ErrInvalidHeaderName)
	assert.ErrorIs(t, ValidateRequestHead("GET", "/", map[string][]string{"X": {"v\r\nInjected: 1"}}), ErrInvalidHeaderValue)
}

func TestChunkedWriter_Wire(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	cw := &ChunkedWriter{W: bw}
	_, _ = cw.Write([]byte("Wiki"))
	_, _ = cw.Write(nil)
	_, _ = cw.Write([]byte("pedia in chunks"))
	require.NoError(t, cw.Close())
	require.NoError(t, bw.Flush())
	assert.Equal(t, "4\r\nWiki\r\nf\r\npedia in chunks\r\n0\r\n\r\n", out.String())
}
