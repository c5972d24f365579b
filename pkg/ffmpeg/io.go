package ffmpeg

import (
	"bytes"
	"errors"
	"io"

	"github.com/asticode/go-astiav"
)

// memoryReader adapts a byte slice to astiav's custom AVIO read/seek
// callbacks, so the demuxer never touches a temporary file. Grounded on the
// InputHandler Read/Seek contract (Eyevinn-avpipe's avpipe.go), reimplemented
// here as plain Go closures instead of cgo-exported functions since astiav
// already owns the C bridge.
type memoryReader struct {
	r *bytes.Reader
}

func newMemoryReader(data []byte) *memoryReader {
	return &memoryReader{r: bytes.NewReader(data)}
}

func (m *memoryReader) Read(b []byte) (int, error) {
	n, err := m.r.Read(b)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, err
}

func (m *memoryReader) Seek(offset int64, whence int) (int64, error) {
	return m.r.Seek(offset, whence)
}

// memoryWriter is a growable in-memory sink for the muxer's output, including
// the trailer-patching seeks some containers perform (e.g. writing the RIFF
// size field last). It implements io.WriterAt-like random access via Seek so
// a later write can overwrite already-written bytes.
type memoryWriter struct {
	buf []byte
	pos int64
}

func newMemoryWriter() *memoryWriter { return &memoryWriter{} }

func (m *memoryWriter) Write(b []byte) (int, error) {
	end := m.pos + int64(len(b))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], b)
	m.pos = end
	return len(b), nil
}

func (m *memoryWriter) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("ffmpeg: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("ffmpeg: negative seek position")
	}
	m.pos = newPos
	return newPos, nil
}

func (m *memoryWriter) Bytes() []byte { return m.buf }

// newInputIOContext wraps data in an astiav IOContext suitable for
// FormatContext.OpenInput, with no temporary file.
func newInputIOContext(data []byte) (*astiav.IOContext, func(), error) {
	mr := newMemoryReader(data)
	ioCtx := astiav.AllocIOContext(
		astiav.DefaultIOContextBufferSize,
		false,
		func(b []byte) (int, error) { return mr.Read(b) },
		nil,
		func(offset int64, whence int) (int64, error) { return mr.Seek(offset, whence) },
	)
	if ioCtx == nil {
		return nil, nil, errAllocation("input io context")
	}
	return ioCtx, func() { ioCtx.Free() }, nil
}

// newOutputIOContext wraps a growable in-memory buffer in an astiav
// IOContext suitable for FormatContext output, returning the writer whose
// Bytes() yields the finished container once the trailer has been written.
func newOutputIOContext() (*astiav.IOContext, *memoryWriter, func(), error) {
	mw := newMemoryWriter()
	ioCtx := astiav.AllocIOContext(
		astiav.DefaultIOContextBufferSize,
		true,
		nil,
		func(b []byte) (int, error) { return mw.Write(b) },
		func(offset int64, whence int) (int64, error) { return mw.Seek(offset, whence) },
	)
	if ioCtx == nil {
		return nil, nil, nil, errAllocation("output io context")
	}
	return ioCtx, mw, func() { ioCtx.Free() }, nil
}
