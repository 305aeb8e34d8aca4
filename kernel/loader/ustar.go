package loader

import (
	"io"
	"strconv"
	"strings"

	"nucleus/kernel"
)

var (
	// ErrNotFound is returned by Lookup when the archive does not contain
	// an entry with the requested name.
	ErrNotFound = &kernel.Error{Module: "loader", Message: "file not found in archive"}
	// ErrInvalidUStar is returned when an entry header's magic field does
	// not read "ustar".
	ErrInvalidUStar = &kernel.Error{Module: "loader", Message: "malformed ustar archive"}
)

const (
	blockSize        = 512
	nameFieldSize    = 100
	sizeFieldOffset  = 124
	sizeFieldSize    = 12
	magicFieldOffset = 257
)

// Lookup performs a linear scan of the USTAR archive backing r for a file
// named name, returning an io.SectionReader sliced to exactly that file's
// contents.
func Lookup(r io.ReaderAt, archiveSize int64, name string) (*io.SectionReader, *kernel.Error) {
	var header [blockSize]byte

	for offset := int64(0); offset+blockSize <= archiveSize; {
		if _, err := r.ReadAt(header[:], offset); err != nil {
			return nil, ErrInvalidUStar
		}

		// Two consecutive zeroed blocks mark the end of the archive.
		if isAllZero(header[:]) {
			return nil, ErrNotFound
		}

		if string(header[magicFieldOffset:magicFieldOffset+5]) != "ustar" {
			return nil, ErrInvalidUStar
		}

		entryName := cString(header[:nameFieldSize])
		size, err := parseOctal(header[sizeFieldOffset : sizeFieldOffset+sizeFieldSize])
		if err != nil {
			return nil, ErrInvalidUStar
		}

		contentOffset := offset + blockSize
		if entryName == name {
			return io.NewSectionReader(r, contentOffset, size), nil
		}

		offset = contentOffset + roundUp(size, blockSize)
	}

	return nil, ErrNotFound
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func parseOctal(b []byte) (int64, error) {
	s := strings.TrimRight(strings.TrimRight(cString(b), "\x00"), " ")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 8, 64)
}

func roundUp(n int64, multiple int64) int64 {
	return ((n + multiple - 1) / multiple) * multiple
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
