package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	var (
		buf    bytes.Buffer
		expStr = "the big brown fox jumped over the lazy dog"
		rb     ringBuffer
	)

	t.Run("read/write", func(t *testing.T) {
		rb.writePos, rb.readPos = 0, 0
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}
		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}
		if got := readByteByByte(&buf, &rb); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("write past capacity advances readPos", func(t *testing.T) {
		rb.writePos, rb.readPos = ringBufferSize-1, 0
		if _, err := rb.Write([]byte{'!'}); err != nil {
			t.Fatal(err)
		}
		if exp := 1; rb.readPos != exp {
			t.Fatalf("expected write to push readPos to %d; got %d", exp, rb.readPos)
		}
	})

	t.Run("write wraps past end of backing array", func(t *testing.T) {
		rb.writePos, rb.readPos = ringBufferSize-2, ringBufferSize-2
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}
		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}
		if got := readByteByByte(&buf, &rb); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("drains fully via io.Copy", func(t *testing.T) {
		rb.writePos, rb.readPos = ringBufferSize-2, ringBufferSize-2
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}
		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}

		var dst bytes.Buffer
		io.Copy(&dst, &rb)
		if got := dst.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
		if rb.Len() != 0 {
			t.Fatalf("expected Len() == 0 after full drain; got %d", rb.Len())
		}
	})

	t.Run("Len tracks unread bytes", func(t *testing.T) {
		rb.writePos, rb.readPos = 0, 0
		rb.Write([]byte("abc"))
		if got := rb.Len(); got != 3 {
			t.Fatalf("expected Len() == 3; got %d", got)
		}
		var discard [1]byte
		rb.Read(discard[:])
		if got := rb.Len(); got != 2 {
			t.Fatalf("expected Len() == 2 after one Read; got %d", got)
		}
	})
}

func readByteByByte(buf *bytes.Buffer, r io.Reader) string {
	buf.Reset()
	b := make([]byte, 1)
	for {
		_, err := r.Read(b)
		if err == io.EOF {
			break
		}
		buf.Write(b)
	}
	return buf.String()
}
