package macho

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
)

const maxFatArches = 128

// An ArchMask is a set of architectures. The zero value selects every architecture.
type ArchMask uint32

const (
	ArchX86_64 ArchMask = 1 << iota
	ArchArm64
)

var archNames = []struct {
	mask ArchMask
	cpu  types.CPU
	name string
}{
	{ArchX86_64, types.CPUAmd64, "x86_64"},
	{ArchArm64, types.CPUArm64, "arm64"},
}

// ParseArch returns the mask bit for an architecture name.
func ParseArch(name string) (ArchMask, error) {
	for _, a := range archNames {
		if strings.EqualFold(a.name, name) {
			return a.mask, nil
		}
	}
	return 0, fmt.Errorf("unsupported arch '%s' (supported: x86_64, arm64)", name)
}

// ArchFromCPU returns the mask bit for cpu, or 0 when cpu is unsupported.
func ArchFromCPU(cpu types.CPU) ArchMask {
	for _, a := range archNames {
		if a.cpu == cpu {
			return a.mask
		}
	}
	return 0
}

// ArchName returns the short name used on the command line for cpu.
func ArchName(cpu types.CPU) string {
	for _, a := range archNames {
		if a.cpu == cpu {
			return a.name
		}
	}
	return cpu.String()
}

// Has reports whether every bit in a is set in m.
func (m ArchMask) Has(a ArchMask) bool { return m&a == a }

// Names returns the architecture names set in m.
func (m ArchMask) Names() []string {
	var names []string
	for _, a := range archNames {
		if m.Has(a.mask) {
			names = append(names, a.name)
		}
	}
	return names
}

func (m ArchMask) String() string {
	if m == 0 {
		return "all"
	}
	return strings.Join(m.Names(), ",")
}

// A Slice is one architecture image inside a file.
type Slice struct {
	CPU    types.CPU
	Offset int64
	Size   uint64
}

func (s Slice) String() string {
	return fmt.Sprintf("%s@%#x", ArchName(s.CPU), s.Offset)
}

// A MissingArchError is returned when requested architectures are not present in the file.
type MissingArchError struct {
	Missing ArchMask
}

func (e *MissingArchError) Error() string {
	names := e.Missing.Names()
	for i, n := range names {
		names[i] = "'" + n + "'"
	}
	return fmt.Sprintf("arch %s not found in file", strings.Join(names, ", "))
}

// Slices enumerates the architecture images of a thin 64-bit or fat file.
// Slices for unsupported CPUs and slices not selected by filter are skipped.
// When filter is non-zero and a requested architecture has no slice a
// *MissingArchError is returned alongside the slices that were found.
func Slices(r io.ReaderAt, filter ArchMask) ([]Slice, error) {
	hdr, err := readAt(r, 0, 8, "magic")
	if err != nil {
		return nil, ErrNotMachO
	}
	magic, _ := hdr.u32("magic", 0)

	var all []Slice
	switch magic {
	case uint32(types.Magic64):
		cpu, _ := hdr.u32("cputype", 4)
		var size uint64
		if sr, ok := r.(interface{ Size() int64 }); ok {
			size = uint64(sr.Size())
		}
		all = append(all, Slice{CPU: types.CPU(cpu), Offset: 0, Size: size})
	case bits.ReverseBytes32(uint32(types.MagicFat)):
		nfat := binary.BigEndian.Uint32(hdr.data[4:8])
		if nfat > maxFatArches {
			return nil, fmt.Errorf("invalid fat header: %d arches exceeds maximum of %d", nfat, maxFatArches)
		}
		table, err := readAt(r, fatHeaderSize, uint64(nfat)*fatArchSize, "fat arch table")
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < uint64(nfat); i++ {
			rec := table.data[i*fatArchSize : (i+1)*fatArchSize]
			all = append(all, Slice{
				CPU:    types.CPU(binary.BigEndian.Uint32(rec[0:])),
				Offset: int64(binary.BigEndian.Uint32(rec[8:])),
				Size:   uint64(binary.BigEndian.Uint32(rec[12:])),
			})
		}
	default:
		return nil, ErrNotMachO
	}

	var slices []Slice
	var seen ArchMask
	for _, s := range all {
		arch := ArchFromCPU(s.CPU)
		if arch == 0 {
			log.WithField("cpu", s.CPU.String()).Debug("Skipping unsupported arch slice")
			continue
		}
		if filter != 0 && !filter.Has(arch) {
			log.WithField("arch", ArchName(s.CPU)).Debug("Skipping arch not selected")
			continue
		}
		seen |= arch
		slices = append(slices, s)
	}

	if missing := filter &^ seen; missing != 0 {
		return slices, &MissingArchError{Missing: missing}
	}

	return slices, nil
}

