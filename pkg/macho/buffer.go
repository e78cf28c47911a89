package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrNotMachO is returned when the leading magic is neither a 64-bit Mach-O nor a fat header.
	ErrNotMachO = errors.New("not a valid Mach-O or FAT file")
	// ErrNotFound is returned when a strategy does not find the requested symbol.
	ErrNotFound = errors.New("symbol not found")
)

// maxReadSize caps a single on-demand read so a corrupt size field cannot
// allocate an unbounded buffer.
const maxReadSize = 1 << 32

// A DecodeError reports a field read that falls outside of its buffer.
type DecodeError struct {
	What   string
	Offset uint64
	Length uint64
	Size   uint64
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %d bytes at offset %#x exceed buffer of size %#x", e.What, e.Length, e.Offset, e.Size)
}

// buffer is a read-only byte slice with bounds checked accessors.
// Offsets are relative to the start of data.
type buffer struct {
	data []byte
}

func (b buffer) size() uint64 { return uint64(len(b.data)) }

func (b buffer) check(what string, off, n uint64) error {
	if off > b.size() || n > b.size()-off {
		return &DecodeError{What: what, Offset: off, Length: n, Size: b.size()}
	}
	return nil
}

func (b buffer) slice(what string, off, n uint64) ([]byte, error) {
	if err := b.check(what, off, n); err != nil {
		return nil, err
	}
	return b.data[off : off+n], nil
}

func (b buffer) u8(what string, off uint64) (uint8, error) {
	if err := b.check(what, off, 1); err != nil {
		return 0, err
	}
	return b.data[off], nil
}

func (b buffer) u32(what string, off uint64) (uint32, error) {
	dat, err := b.slice(what, off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(dat), nil
}

func (b buffer) i32(what string, off uint64) (int32, error) {
	v, err := b.u32(what, off)
	return int32(v), err
}

func (b buffer) u64(what string, off uint64) (uint64, error) {
	dat, err := b.slice(what, off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(dat), nil
}

// cstring reads a NUL terminated string starting at off.
func (b buffer) cstring(what string, off uint64) (string, error) {
	if err := b.check(what, off, 0); err != nil {
		return "", err
	}
	end := bytes.IndexByte(b.data[off:], 0)
	if end < 0 {
		return "", &DecodeError{What: what + " (unterminated)", Offset: off, Length: b.size() - off + 1, Size: b.size()}
	}
	return string(b.data[off : off+uint64(end)]), nil
}

// uleb128 decodes an unsigned LEB128 value at off and returns it along with
// the offset of the following byte.
func (b buffer) uleb128(what string, off uint64) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for {
		c, err := b.u8(what, off)
		if err != nil {
			return 0, 0, err
		}
		off++
		if shift < 64 {
			result |= uint64(c&0x7f) << shift
		}
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, off, nil
}

// decode reads a fixed size little-endian structure at off into v.
func (b buffer) decode(what string, off uint64, v any) error {
	dat, err := b.slice(what, off, uint64(binary.Size(v)))
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(dat), binary.LittleEndian, v)
}

// readAt reads n bytes at the absolute offset off into a new buffer.
func readAt(r io.ReaderAt, off int64, n uint64, what string) (buffer, error) {
	if off < 0 {
		return buffer{}, &DecodeError{What: what, Offset: uint64(off), Length: n}
	}
	if n > maxReadSize {
		return buffer{}, &DecodeError{What: what, Offset: uint64(off), Length: n, Size: maxReadSize}
	}
	if sr, ok := r.(interface{ Size() int64 }); ok {
		if size := uint64(sr.Size()); uint64(off) > size || n > size-uint64(off) {
			return buffer{}, &DecodeError{What: what, Offset: uint64(off), Length: n, Size: size}
		}
	}
	dat := make([]byte, n)
	if _, err := r.ReadAt(dat, off); err != nil {
		if errors.Is(err, io.EOF) {
			return buffer{}, &DecodeError{What: what, Offset: uint64(off), Length: n}
		}
		return buffer{}, errors.Wrapf(err, "failed to read %s at %#x", what, off)
	}
	return buffer{data: dat}, nil
}
