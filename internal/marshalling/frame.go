package marshalling

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/compressor"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// 流格式：
//
//	header := magic(2) version(1) [writerID(16), v>=3]
//	frame  := length(4, 大端) flags(1) payload(length) [xxhash64(8, 大端), v>=2]
//
// flags 低 4 位为压缩算法，frameEnd 标记流结束帧（length 为 0）。
// 记录可以跨帧，读端按需把帧解压后放入环形缓冲区再逐字节消费。
const (
	magic0 byte = 0xDA
	magic1 byte = 0x7A

	frameHeaderSize   = 5
	frameChecksumSize = 8
	frameEnd          = 0x80

	// minCompressSize 以下的帧不尝试压缩。
	minCompressSize = 64
)

// frameWriter 把记录字节攒成帧写出，单帧负载不超过 limit。
type frameWriter struct {
	out     ByteOutput
	version int
	kind    compressor.Kind
	comp    compressor.Compressor
	limit   int
	st      *writeState
	written int64
}

func (w *frameWriter) writeHeader(writerID uuid.UUID) error {
	hdr := []byte{magic0, magic1, byte(w.version)}
	if w.version >= versionStreamID {
		hdr = append(hdr, writerID[:]...)
	}
	return w.writeRaw(hdr, "write stream header")
}

// Write 追加记录字节，缓冲区攒满一帧即写出。
func (w *frameWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		space := w.limit - w.st.frame.Buffered()
		if space <= 0 {
			if err := w.flushFrame(); err != nil {
				return total - len(p), err
			}
			continue
		}
		n := min(space, len(p))
		_, _ = w.st.frame.Write(p[:n])
		p = p[n:]
	}
	if w.st.frame.Buffered() >= w.limit {
		if err := w.flushFrame(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *frameWriter) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}

// flushFrame 把缓冲区中未写出的字节作为一帧写出，缓冲区为空时什么也不做。
func (w *frameWriter) flushFrame() error {
	n := w.st.frame.Buffered()
	if n == 0 {
		return nil
	}
	if cap(w.st.raw) < n {
		w.st.raw = make([]byte, n)
	}
	body := w.st.raw[:n]
	_, _ = w.st.frame.Read(body)

	flags := byte(compressor.KindNone)
	if w.kind != compressor.KindNone && n >= minCompressSize {
		packed, err := w.comp.Compress(w.st.scratch, body)
		if err != nil {
			return errors.Wrapf(err, "compress frame with %s", w.kind)
		}
		w.st.scratch = packed[:0]
		if len(packed) < n {
			body = packed
			flags = byte(w.kind)
		}
	}
	return w.emit(flags, body)
}

// writeEnd 写出结束帧。
func (w *frameWriter) writeEnd() error {
	return w.emit(frameEnd, nil)
}

func (w *frameWriter) emit(flags byte, body []byte) error {
	if len(body) > maxFrameSize {
		return merr.WrapErrFrameTooLarge(len(body), maxFrameSize)
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(body)))
	hdr[4] = flags
	if err := w.writeRaw(hdr[:], "write frame header"); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := w.writeRaw(body, "write frame body"); err != nil {
			return err
		}
	}
	if w.version >= versionChecksum {
		var sum [frameChecksumSize]byte
		binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(body))
		if err := w.writeRaw(sum[:], "write frame checksum"); err != nil {
			return err
		}
	}
	return nil
}

func (w *frameWriter) writeRaw(p []byte, op string) error {
	n, err := w.out.Write(p)
	w.written += int64(n)
	metrics.FrameBytes.WithLabelValues(metrics.RoleMarshaller, w.kind.String()).Add(float64(n))
	if err != nil {
		return merr.WrapErrIoFailed(op, err)
	}
	if n < len(p) {
		return merr.WrapErrIoFailed(op, io.ErrShortWrite)
	}
	return nil
}

// frameReader 按需读取帧并把解压后的负载放入环形缓冲区。
type frameReader struct {
	in      ByteInput
	version int
	st      *readState
	ended   bool
	// missingEnd 表示底层输入在帧边界上结束，但没有读到结束帧。
	missingEnd bool
	read       int64
}

// readHeader 读取流头，返回流的协议版本与写端会话 ID（v3 以下为 uuid.Nil）。
func (r *frameReader) readHeader() (int, uuid.UUID, error) {
	var hdr [3]byte
	if err := r.readRaw(hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, uuid.Nil, merr.WrapErrInvalidStream("missing stream header")
		}
		return 0, uuid.Nil, merr.WrapErrIoFailed("read stream header", err)
	}
	if hdr[0] != magic0 || hdr[1] != magic1 {
		return 0, uuid.Nil, merr.WrapErrInvalidStream(fmt.Sprintf("bad magic 0x%02x%02x", hdr[0], hdr[1]))
	}
	version := int(hdr[2])
	writerID := uuid.Nil
	if version >= versionStreamID && IsSupportedVersion(version) {
		var raw [16]byte
		if err := r.readRaw(raw[:]); err != nil {
			return version, uuid.Nil, merr.WrapErrInvalidStream("truncated stream header")
		}
		writerID = uuid.UUID(raw)
	}
	return version, writerID, nil
}

// buffered 返回已解码但尚未消费的字节数。
func (r *frameReader) buffered() int {
	return r.st.frame.Buffered()
}

// fill 保证缓冲区中至少有 n 个字节；流已结束且不足 n 字节时返回 io.EOF。
func (r *frameReader) fill(n int) error {
	for r.st.frame.Buffered() < n {
		if r.ended {
			return io.EOF
		}
		if err := r.nextFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (r *frameReader) nextFrame() error {
	var hdr [frameHeaderSize]byte
	if err := r.readRaw(hdr[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			// 写端总以结束帧收尾，没有结束帧的流是被截断的。
			r.missingEnd = true
			return merr.WrapErrInvalidStream("missing end frame")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return merr.WrapErrInvalidStream("truncated frame header")
		default:
			return merr.WrapErrIoFailed("read frame header", err)
		}
	}
	size := int(binary.BigEndian.Uint32(hdr[:4]))
	flags := hdr[4]
	if size > maxFrameSize {
		return merr.WrapErrFrameTooLarge(size, maxFrameSize)
	}
	if cap(r.st.raw) < size {
		r.st.raw = make([]byte, size)
	}
	body := r.st.raw[:size]
	if err := r.readRaw(body); err != nil {
		return r.truncated("frame body", err)
	}
	if r.version >= versionChecksum {
		var sum [frameChecksumSize]byte
		if err := r.readRaw(sum[:]); err != nil {
			return r.truncated("frame checksum", err)
		}
		expected := binary.BigEndian.Uint64(sum[:])
		if actual := xxhash.Sum64(body); actual != expected {
			return merr.WrapErrStreamCorrupted(expected, actual)
		}
	}
	if flags&frameEnd != 0 {
		r.ended = true
		return nil
	}

	kind := compressor.Kind(flags & compressor.KindMask)
	comp, err := compressor.Get(kind)
	if err != nil {
		return merr.WrapErrInvalidStream(fmt.Sprintf("frame flags 0x%02x", flags))
	}
	plain, err := comp.Decompress(r.st.scratch, body)
	if err != nil {
		return merr.WrapErrInvalidStream(fmt.Sprintf("decompress %s frame: %v", kind, err))
	}
	if kind != compressor.KindNone {
		r.st.scratch = plain[:0]
	}
	_, _ = r.st.frame.Write(plain)
	metrics.FrameBytes.WithLabelValues(metrics.RoleUnmarshaller, kind.String()).Add(float64(frameHeaderSize + size))
	return nil
}

func (r *frameReader) truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return merr.WrapErrInvalidStream("truncated " + what)
	}
	return merr.WrapErrIoFailed("read "+what, err)
}

func (r *frameReader) readRaw(p []byte) error {
	n, err := io.ReadFull(r.in, p)
	r.read += int64(n)
	return err
}

// ReadByte 消费一个已解码字节，流结束时返回 io.EOF。
func (r *frameReader) ReadByte() (byte, error) {
	if err := r.fill(1); err != nil {
		return 0, err
	}
	return r.st.frame.ReadByte()
}

// Read 读取至多 len(p) 个字节，只在缓冲区为空时才加载下一帧；流结束时返回 io.EOF。
func (r *frameReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(1); err != nil {
		return 0, err
	}
	return r.st.frame.Read(p)
}

// next 精确读取 len(p) 个字节，流提前结束时返回 merr.ErrPrematureEOF。
func (r *frameReader) next(p []byte) error {
	if err := r.fill(len(p)); err != nil {
		if errors.Is(err, io.EOF) {
			return merr.WrapErrPrematureEOF(len(p), r.st.frame.Buffered())
		}
		return err
	}
	if len(p) > 0 {
		_, _ = r.st.frame.Read(p)
	}
	return nil
}

var _ io.ByteReader = (*frameReader)(nil)

