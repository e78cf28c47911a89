package macho

import (
	"fmt"
	"io"

	"github.com/apex/log"
)

// A SymbolTable holds an image's nlist entries and string table.
type SymbolTable struct {
	syms  buffer
	strs  buffer
	nsyms uint32
}

// LoadSymbolTable reads the LC_SYMTAB tables of an image. It returns nil when
// the image has no symbol table.
func LoadSymbolTable(r io.ReaderAt, info *ImageInfo) (*SymbolTable, error) {
	if info.Symoff == 0 {
		return nil, nil
	}
	syms, err := readAt(r, info.BaseOffset+int64(info.Symoff), uint64(info.Nsyms)*nlist64Size, "symbol table")
	if err != nil {
		return nil, err
	}
	strs, err := readAt(r, info.BaseOffset+int64(info.Stroff), uint64(info.Strsize), "string table")
	if err != nil {
		return nil, err
	}
	return &SymbolTable{syms: syms, strs: strs, nsyms: info.Nsyms}, nil
}

// Entry returns nlist entry i and its name.
func (t *SymbolTable) Entry(i uint32) (Nlist64, string, error) {
	nl, err := t.nlist(i)
	if err != nil {
		return nl, "", err
	}
	name, err := t.name(i, nl)
	return nl, name, err
}

func (t *SymbolTable) nlist(i uint32) (Nlist64, error) {
	var nl Nlist64
	if i >= t.nsyms {
		return nl, &DecodeError{What: "nlist index", Offset: uint64(i), Length: 1, Size: uint64(t.nsyms)}
	}
	err := t.syms.decode(fmt.Sprintf("nlist %d", i), uint64(i)*nlist64Size, &nl)
	return nl, err
}

func (t *SymbolTable) name(i uint32, nl Nlist64) (string, error) {
	return t.strs.cstring(fmt.Sprintf("nlist %d name", i), uint64(nl.Name))
}

// ScanStubs looks for name in the indirect symbol entries of the __TEXT symbol stubs section.
// The returned location is the stub slot and is bounded by the stub size.
func ScanStubs(r io.ReaderAt, info *ImageInfo, tab *SymbolTable, name string) (Location, error) {
	if tab == nil || info.IndirectSymOff == 0 || info.StubsOff == 0 || info.StubLen == 0 {
		return Location{}, ErrNotFound
	}

	count := info.StubsSize / uint64(info.StubLen)
	indirect, err := readAt(r,
		info.BaseOffset+int64(info.IndirectSymOff)+int64(info.StubsIndirectIdx)*4,
		count*4,
		"indirect symbol table")
	if err != nil {
		return Location{}, err
	}

	for i := uint64(0); i < count; i++ {
		idx, err := indirect.u32("indirect symbol", i*4)
		if err != nil {
			return Location{}, err
		}
		if idx&(INDIRECT_SYMBOL_LOCAL|INDIRECT_SYMBOL_ABS) != 0 {
			continue
		}
		_, symName, err := tab.Entry(idx)
		if err != nil {
			return Location{}, err
		}
		if symName != name {
			continue
		}
		log.WithFields(log.Fields{
			"slot":     i,
			"stub_len": info.StubLen,
		}).Debug("Found symbol stub")
		return Location{
			CPU:         info.CPU,
			FileOffset:  info.BaseOffset + int64(info.StubsOff) + int64(i)*int64(info.StubLen),
			MaxPatchLen: info.StubLen,
			Strategy:    StrategyStubs,
		}, nil
	}

	return Location{}, ErrNotFound
}

// ScanSymtab looks for a section-defined symbol named name.
func ScanSymtab(info *ImageInfo, tab *SymbolTable, name string) (Location, error) {
	if tab == nil {
		return Location{}, ErrNotFound
	}
	for i := uint32(0); i < tab.nsyms; i++ {
		nl, err := tab.nlist(i)
		if err != nil {
			return Location{}, err
		}
		if !nl.Type.IsDefinedInSection() {
			continue
		}
		symName, err := tab.name(i, nl)
		if err != nil {
			return Location{}, err
		}
		if symName != name {
			continue
		}
		return Location{
			CPU:        info.CPU,
			FileOffset: info.BaseOffset + info.TextVMSlide + int64(nl.Value),
			Strategy:   StrategySymtab,
		}, nil
	}
	return Location{}, ErrNotFound
}
