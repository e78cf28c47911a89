package macho

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// Strategy names the resolver that produced a Location.
type Strategy string

const (
	StrategyHexOffset Strategy = "hex offset"
	StrategyExports   Strategy = "export trie"
	StrategyStubs     Strategy = "symbol stubs"
	StrategySymtab    Strategy = "symtab"
	StrategyObjC      Strategy = "objc metadata"
)

// A Location is a resolved symbol in one architecture slice.
type Location struct {
	CPU        types.CPU
	FileOffset int64
	// MaxPatchLen bounds the bytes that may be written at FileOffset; 0 means unbounded.
	MaxPatchLen uint32
	Strategy    Strategy
}

func (l Location) String() string {
	return fmt.Sprintf("%#x", uint64(l.FileOffset))
}

// Resolve scans the image in slice s and resolves sym with the strategy its kind selects.
// ErrNotFound is returned when the image does not contain sym.
func Resolve(r io.ReaderAt, s Slice, sym Symbol) (Location, error) {
	info, err := ScanImage(r, s)
	if err != nil {
		return Location{}, errors.Wrapf(err, "failed to parse %s slice", ArchName(s.CPU))
	}

	var loc Location
	switch sym.Kind {
	case KindHexOffset:
		loc = Location{
			CPU:        info.CPU,
			FileOffset: int64(sym.Offset) + info.BaseOffset + info.TextVMSlide,
			Strategy:   StrategyHexOffset,
		}
	case KindObjC:
		loc, err = FindObjCMethod(r, info, sym)
	default:
		loc, err = resolveRegular(r, info, sym.Name)
	}
	if err != nil {
		return Location{}, err
	}

	if end := sliceEnd(r, s); loc.FileOffset < 0 || (end > 0 && loc.FileOffset >= end) {
		log.WithFields(log.Fields{
			"arch":     ArchName(info.CPU),
			"strategy": string(loc.Strategy),
		}).Warnf("%s resolves to file offset %#x, outside of the %s slice", sym, loc.FileOffset, ArchName(info.CPU))
		return Location{}, ErrNotFound
	}

	if loc.FileOffset == 0 {
		log.WithFields(log.Fields{
			"arch":     ArchName(info.CPU),
			"strategy": string(loc.Strategy),
		}).Debug("Resolved offset is 0, which is indistinguishable from a missing symbol")
		return Location{}, ErrNotFound
	}

	log.WithFields(log.Fields{
		"arch":     ArchName(info.CPU),
		"strategy": string(loc.Strategy),
		"offset":   loc.String(),
	}).Debug("Resolved symbol")

	return loc, nil
}

// resolveRegular tries the export trie, then the symbol stubs, then the symbol table.
func resolveRegular(r io.ReaderAt, info *ImageInfo, name string) (Location, error) {
	if info.ExportOff != 0 {
		trie, err := readAt(r, info.BaseOffset+int64(info.ExportOff), uint64(info.ExportSize), "export trie")
		if err != nil {
			return Location{}, err
		}
		addr, err := WalkExportTrie(trie.data, name)
		switch {
		case err == nil && addr != 0:
			return Location{
				CPU:        info.CPU,
				FileOffset: int64(addr) + info.BaseOffset,
				Strategy:   StrategyExports,
			}, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return Location{}, err
		}
	}

	tab, err := LoadSymbolTable(r, info)
	if err != nil {
		return Location{}, err
	}

	loc, err := ScanStubs(r, info, tab, name)
	if err == nil && loc.FileOffset != 0 {
		return loc, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return Location{}, err
	}

	return ScanSymtab(info, tab, name)
}

// sliceEnd returns the file offset one past the end of slice s, or 0 when unknown.
func sliceEnd(r io.ReaderAt, s Slice) int64 {
	if s.Size != 0 {
		return s.Offset + int64(s.Size)
	}
	if sr, ok := r.(interface{ Size() int64 }); ok {
		return sr.Size()
	}
	return 0
}
