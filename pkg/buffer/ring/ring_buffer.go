// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2019 Chao yuepan, Allen Xu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE

// Package ring 实现了一个可自动扩容的环形缓冲区。
//
// 在往返测试中它承担两个角色：
//   - Driver 持有的“字节汇”，写阶段的全部序列化输出都落在这里；
//   - 会话内部的帧缓冲，Marshaller 攒够一帧后再整体写出，Unmarshaller 按帧填充后逐字节消费。
package ring

import (
	"errors"
	"io"
	"math/bits"
)

const (
	// DefaultBufferSize 是环形缓冲区扩容时的最小容量。
	DefaultBufferSize   = 1024     // 1KB
	bufferGrowThreshold = 4 * 1024 // 4KB
)

var (
	_ io.Reader     = (*Buffer)(nil)
	_ io.Writer     = (*Buffer)(nil)
	_ io.ByteReader = (*Buffer)(nil)
	_ io.ByteWriter = (*Buffer)(nil)
)

// ErrIsEmpty 表示当前环形缓冲区为空，无法继续读取。
var ErrIsEmpty = errors.New("ring-buffer is empty")

// Buffer 是一个环形缓冲区，实现了 io.Reader、io.Writer、io.ByteReader 与 io.ByteWriter。
//
// Buffer 不是并发安全的，同一时刻只能由一个会话持有。
type Buffer struct {
	buf     []byte // 底层字节切片
	size    int    // 缓冲区容量（始终为 2 的幂）
	r       int    // 下一次读取位置
	w       int    // 下一次写入位置
	isEmpty bool   // r == w 时用于区分“空/满”状态
}

// New 创建一个给定初始容量的 Buffer。
// size 会被向上取整为 2 的幂；size 为 0 时，仅创建一个逻辑上的空缓冲区，首次写入时再分配。
func New(size int) *Buffer {
	if size <= 0 {
		return &Buffer{isEmpty: true}
	}
	size = ceilToPowerOfTwo(size)
	return &Buffer{
		buf:     make([]byte, size),
		size:    size,
		isEmpty: true,
	}
}

// Read 实现 io.Reader 接口。
//
// 缓冲区为空时返回 ErrIsEmpty；可读数据不足 len(p) 时尽可能多地读取并立即返回。
func (rb *Buffer) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if rb.isEmpty {
		return 0, ErrIsEmpty
	}

	if rb.w > rb.r {
		n = min(rb.w-rb.r, len(p))
		copy(p, rb.buf[rb.r:rb.r+n])
		rb.advance(n)
		return n, nil
	}

	n = min(rb.size-rb.r+rb.w, len(p))
	if rb.r+n <= rb.size {
		copy(p, rb.buf[rb.r:rb.r+n])
	} else {
		c1 := rb.size - rb.r
		copy(p, rb.buf[rb.r:])
		copy(p[c1:], rb.buf[:n-c1])
	}
	rb.advance(n)
	return n, nil
}

// ReadByte 读取并返回下一个字节，当缓冲区为空时返回 ErrIsEmpty。
func (rb *Buffer) ReadByte() (byte, error) {
	if rb.isEmpty {
		return 0, ErrIsEmpty
	}
	b := rb.buf[rb.r]
	rb.advance(1)
	return b, nil
}

// Write 实现 io.Writer 接口，剩余空间不足时自动扩容，不会修改 p。
func (rb *Buffer) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return 0, nil
	}

	if free := rb.Available(); n > free {
		rb.grow(rb.size + n - free)
	}

	if rb.w >= rb.r {
		c1 := rb.size - rb.w
		if c1 >= n {
			copy(rb.buf[rb.w:], p)
			rb.w += n
		} else {
			copy(rb.buf[rb.w:], p[:c1])
			copy(rb.buf, p[c1:])
			rb.w = n - c1
		}
	} else {
		copy(rb.buf[rb.w:], p)
		rb.w += n
	}

	if rb.w == rb.size {
		rb.w = 0
	}
	rb.isEmpty = false
	return n, nil
}

// WriteByte 向缓冲区写入单个字节。
func (rb *Buffer) WriteByte(c byte) error {
	if rb.Available() < 1 {
		rb.grow(rb.size + 1)
	}
	rb.buf[rb.w] = c
	rb.w++
	if rb.w == rb.size {
		rb.w = 0
	}
	rb.isEmpty = false
	return nil
}

// WriteString 将字符串 s 的内容写入缓冲区。
func (rb *Buffer) WriteString(s string) (int, error) {
	return rb.Write([]byte(s))
}

// Bytes 返回当前所有可读数据的拷贝，不移动读指针。
func (rb *Buffer) Bytes() []byte {
	head, tail := rb.peekAll()
	if len(head)+len(tail) == 0 {
		return nil
	}
	bb := make([]byte, 0, len(head)+len(tail))
	bb = append(bb, head...)
	return append(bb, tail...)
}

// Buffered 返回当前缓冲区中可读数据的字节数。
func (rb *Buffer) Buffered() int {
	if rb.r == rb.w {
		if rb.isEmpty {
			return 0
		}
		return rb.size
	}
	if rb.w > rb.r {
		return rb.w - rb.r
	}
	return rb.size - rb.r + rb.w
}

// Available 返回当前缓冲区中可写入的剩余字节数。
func (rb *Buffer) Available() int {
	if rb.r == rb.w {
		if rb.isEmpty {
			return rb.size
		}
		return 0
	}
	if rb.w < rb.r {
		return rb.r - rb.w
	}
	return rb.size - rb.w + rb.r
}

// Len 返回底层缓冲区的长度。
func (rb *Buffer) Len() int {
	return len(rb.buf)
}

// Cap 返回底层缓冲区的容量。
func (rb *Buffer) Cap() int {
	return rb.size
}

// Reset 将读写指针重置为 0，并将缓冲区标记为“空”状态。底层内存保留以便复用。
func (rb *Buffer) Reset() {
	rb.isEmpty = true
	rb.r, rb.w = 0, 0
}

func (rb *Buffer) advance(n int) {
	rb.r = (rb.r + n) % rb.size
	if rb.r == rb.w {
		rb.Reset()
	}
}

// peekAll 返回所有可读数据，但不会前进读指针。
func (rb *Buffer) peekAll() (head []byte, tail []byte) {
	if rb.isEmpty {
		return
	}
	if rb.w > rb.r {
		return rb.buf[rb.r:rb.w], nil
	}
	head = rb.buf[rb.r:]
	if rb.w != 0 {
		tail = rb.buf[:rb.w]
	}
	return
}

func (rb *Buffer) grow(newCap int) {
	if n := rb.size; n == 0 {
		if newCap <= DefaultBufferSize {
			newCap = DefaultBufferSize
		} else {
			newCap = ceilToPowerOfTwo(newCap)
		}
	} else {
		doubleCap := n + n
		if newCap <= doubleCap {
			if n < bufferGrowThreshold {
				newCap = doubleCap
			} else {
				// 0 < n 用于检测溢出，避免死循环。
				for 0 < n && n < newCap {
					n += n / 4
				}
				if n > 0 {
					newCap = n
				}
			}
		}
	}
	newBuf := make([]byte, newCap)
	oldLen := rb.Buffered()
	head, tail := rb.peekAll()
	copy(newBuf, head)
	copy(newBuf[len(head):], tail)
	rb.buf = newBuf
	rb.r = 0
	rb.w = oldLen % newCap
	rb.size = newCap
	rb.isEmpty = oldLen == 0
}

// ceilToPowerOfTwo 将 n 向上取整为最接近的 2 的幂。
func ceilToPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
