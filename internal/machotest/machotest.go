// Package machotest builds small synthetic 64-bit Mach-O images for tests.
//
// Every image uses the same file layout:
//
//	0x0000 mach header and load commands
//	0x0800 __TEXT,__text
//	0x0c00 __TEXT,__stubs
//	0x1000 __TEXT,__cstring
//	0x1800 __DATA_CONST,__objc_classlist (selector refs at 0x1c00)
//	0x2000 __DATA,__objc_data (class_ro_t at 0x2200, method lists at 0x2800)
//	0x3000 __LINKEDIT (symtab, indirect symbols at 0x3400, strings at 0x3600, exports at 0x3a00)
//
// Segment vm addresses are TextVMAddr plus the file offset.
package machotest

import (
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho/types"
)

const (
	TextOff       = 0x0800
	StubsOff      = 0x0c00
	CStringOff    = 0x1000
	DataConstOff  = 0x1800
	SelRefsOff    = 0x1c00
	DataOff       = 0x2000
	ClassROOff    = 0x2200
	MethodListOff = 0x2800
	LinkEditOff   = 0x3000
	IndirectOff   = 0x3400
	StrTabOff     = 0x3600
	ExportsOff    = 0x3a00
	ImageSize     = 0x4000

	// DefaultTextVMAddr is the __TEXT vm address used when Image.TextVMAddr is zero.
	DefaultTextVMAddr = 0x100000000

	classStride   = 0x50
	classROStride = 0x90
	classROSize   = 0x48
)

// nlist n_type values.
const (
	NUndf = 0x0
	NExt  = 0x1
	NSect = 0xe
)

// Export flags.
const (
	ExportRegular         = 0x00
	ExportThreadLocal     = 0x01
	ExportWeakDefinition  = 0x04
	ExportReexport        = 0x08
	ExportStubAndResolver = 0x10
)

// A Symbol is an nlist entry. Value is a vm address.
type Symbol struct {
	Name  string
	Type  uint8
	Value uint64
}

// An Export is an export trie entry. Addr is an offset from the mach header.
type Export struct {
	Name  string
	Flags uint64
	Addr  uint64
}

// A Method is an ObjC method. Imp is an offset from the mach header.
type Method struct {
	Selector string
	Imp      uint64
}

// A Class is an ObjC class with its instance and class methods.
type Class struct {
	Name         string
	Methods      []Method
	ClassMethods []Method
}

// An Image describes a synthetic Mach-O image.
type Image struct {
	CPU        types.CPU
	TextVMAddr uint64

	Symbols []Symbol
	// Stubs names the symbol each stub slot binds to. An empty name is an
	// INDIRECT_SYMBOL_LOCAL entry.
	Stubs   []string
	StubLen uint32

	Exports []Export
	// ExportsTrieCmd uses LC_DYLD_EXPORTS_TRIE instead of LC_DYLD_INFO_ONLY.
	ExportsTrieCmd bool
	// ShadowExportsTrie adds an empty LC_DYLD_EXPORTS_TRIE after LC_DYLD_INFO_ONLY.
	ShadowExportsTrie bool

	Classes         []Class
	RelativeMethods bool
	DirectSelectors bool
	// ImageRelativePointers writes ObjC pointers as offsets from the mach header
	// with high tag bits set, the way chained fixups look on disk.
	ImageRelativePointers bool
	// TagDataPointers sets the FAST_* flag bits in class data pointers.
	TagDataPointers bool
}

type writer struct {
	b []byte
}

func (w *writer) u8(off uint64, v uint8)   { w.b[off] = v }
func (w *writer) u32(off uint64, v uint32) { binary.LittleEndian.PutUint32(w.b[off:], v) }
func (w *writer) u64(off uint64, v uint64) { binary.LittleEndian.PutUint64(w.b[off:], v) }
func (w *writer) name16(off uint64, s string) {
	copy(w.b[off:off+16], s)
}

// arena hands out consecutive ranges of a region.
type arena struct {
	name      string
	cur, end  uint64
	alignment uint64
}

func (a *arena) alloc(n uint64) uint64 {
	if a.alignment > 1 {
		a.cur = (a.cur + a.alignment - 1) &^ (a.alignment - 1)
	}
	off := a.cur
	if off+n > a.end {
		panic(fmt.Sprintf("machotest: %s region overflow", a.name))
	}
	a.cur += n
	return off
}

// Build serializes the image.
func (img Image) Build() []byte {
	if img.TextVMAddr == 0 {
		img.TextVMAddr = DefaultTextVMAddr
	}
	if img.StubLen == 0 {
		img.StubLen = 12
		if img.CPU == types.CPUAmd64 {
			img.StubLen = 6
		}
	}

	w := &writer{b: make([]byte, ImageSize)}
	strs := &arena{name: "cstring", cur: CStringOff, end: DataConstOff}
	cstr := func(s string) uint64 {
		off := strs.alloc(uint64(len(s)) + 1)
		copy(w.b[off:], s)
		return off
	}

	// symbols, with undefined entries for stub targets not already listed
	syms := append([]Symbol(nil), img.Symbols...)
	index := make(map[string]uint32)
	for i, s := range syms {
		if _, ok := index[s.Name]; !ok {
			index[s.Name] = uint32(i)
		}
	}
	for _, name := range img.Stubs {
		if _, ok := index[name]; name != "" && !ok {
			index[name] = uint32(len(syms))
			syms = append(syms, Symbol{Name: name, Type: NUndf | NExt})
		}
	}
	strtab := &arena{name: "string table", cur: StrTabOff, end: ExportsOff}
	strtab.alloc(2) // " \x00"
	w.u8(StrTabOff, ' ')
	for i, s := range syms {
		if LinkEditOff+uint64(i+1)*16 > IndirectOff {
			panic("machotest: too many symbols")
		}
		strx := strtab.alloc(uint64(len(s.Name)) + 1)
		copy(w.b[strx:], s.Name)
		ent := LinkEditOff + uint64(i)*16
		w.u32(ent, uint32(strx-StrTabOff))
		w.u8(ent+4, s.Type)
		if s.Type&NSect == NSect {
			w.u8(ent+5, 1)
		}
		w.u64(ent+8, s.Value)
	}
	for i, name := range img.Stubs {
		idx := INDIRECT_SYMBOL_LOCAL
		if name != "" {
			idx = index[name]
		}
		w.u32(IndirectOff+uint64(i)*4, idx)
	}

	var trie []byte
	if len(img.Exports) > 0 {
		trie = BuildTrie(img.Exports)
		if uint64(len(trie)) > ImageSize-ExportsOff-0x100 {
			panic("machotest: export trie too large")
		}
		copy(w.b[ExportsOff:], trie)
	}

	img.writeObjC(w, cstr)

	// load commands
	var ncmds uint32
	off := uint64(types.FileHeaderSize64)
	segment := func(name string, fileoff, filesize uint64, sects []section) {
		w.u32(off, uint32(types.LC_SEGMENT_64))
		w.u32(off+4, uint32(72+80*len(sects)))
		w.name16(off+8, name)
		w.u64(off+24, img.TextVMAddr+fileoff)
		w.u64(off+32, filesize)
		w.u64(off+40, fileoff)
		w.u64(off+48, filesize)
		w.u32(off+56, 7)
		w.u32(off+60, 5)
		w.u32(off+64, uint32(len(sects)))
		off += 72
		for _, s := range sects {
			w.name16(off, s.name)
			w.name16(off+16, name)
			w.u64(off+32, img.TextVMAddr+s.offset)
			w.u64(off+40, s.size)
			w.u32(off+48, uint32(s.offset))
			w.u32(off+64, s.flags)
			w.u32(off+68, s.reserved1)
			w.u32(off+72, s.reserved2)
			off += 80
		}
		ncmds++
	}

	textSects := []section{{name: "__text", offset: TextOff, size: StubsOff - TextOff, flags: 0x80000400}}
	if len(img.Stubs) > 0 {
		textSects = append(textSects, section{
			name:      "__stubs",
			offset:    StubsOff,
			size:      uint64(len(img.Stubs)) * uint64(img.StubLen),
			flags:     0x80000408,
			reserved2: img.StubLen,
		})
	}
	textSects = append(textSects, section{name: "__cstring", offset: CStringOff, size: strs.cur - CStringOff, flags: 0x2})
	segment("__TEXT", 0, DataConstOff, textSects)

	var dcSects []section
	if len(img.Classes) > 0 {
		dcSects = append(dcSects,
			section{name: "__objc_classlist", offset: DataConstOff, size: uint64(len(img.Classes)) * 8},
			section{name: "__objc_selrefs", offset: SelRefsOff, size: DataOff - SelRefsOff},
		)
	}
	segment("__DATA_CONST", DataConstOff, DataOff-DataConstOff, dcSects)
	segment("__DATA", DataOff, LinkEditOff-DataOff, []section{
		{name: "__objc_data", offset: DataOff, size: ClassROOff - DataOff},
		{name: "__objc_const", offset: ClassROOff, size: LinkEditOff - ClassROOff},
	})
	segment("__LINKEDIT", LinkEditOff, ImageSize-LinkEditOff, nil)

	if len(trie) > 0 {
		if img.ExportsTrieCmd {
			w.u32(off, uint32(types.LC_DYLD_EXPORTS_TRIE))
			w.u32(off+4, 16)
			w.u32(off+8, ExportsOff)
			w.u32(off+12, uint32(len(trie)))
			off += 16
		} else {
			w.u32(off, uint32(types.LC_DYLD_INFO_ONLY))
			w.u32(off+4, 48)
			w.u32(off+40, ExportsOff)
			w.u32(off+44, uint32(len(trie)))
			off += 48
		}
		ncmds++
		if img.ShadowExportsTrie {
			// two zero bytes: a non-terminal root without children
			empty := uint64(ImageSize - 0x10)
			w.u32(off, uint32(types.LC_DYLD_EXPORTS_TRIE))
			w.u32(off+4, 16)
			w.u32(off+8, uint32(empty))
			w.u32(off+12, 2)
			off += 16
			ncmds++
		}
	}

	if len(syms) > 0 {
		w.u32(off, uint32(types.LC_SYMTAB))
		w.u32(off+4, 24)
		w.u32(off+8, LinkEditOff)
		w.u32(off+12, uint32(len(syms)))
		w.u32(off+16, StrTabOff)
		w.u32(off+20, uint32(strtab.cur-StrTabOff))
		off += 24
		ncmds++
	}
	if len(img.Stubs) > 0 {
		w.u32(off, uint32(types.LC_DYSYMTAB))
		w.u32(off+4, 80)
		w.u32(off+56, IndirectOff)
		w.u32(off+60, uint32(len(img.Stubs)))
		off += 80
		ncmds++
	}

	if off > TextOff {
		panic("machotest: load commands overflow")
	}

	w.u32(0, uint32(types.Magic64))
	w.u32(4, uint32(img.CPU))
	if img.CPU == types.CPUAmd64 {
		w.u32(8, 3)
	}
	w.u32(12, 2) // MH_EXECUTE
	w.u32(16, ncmds)
	w.u32(20, uint32(off-types.FileHeaderSize64))

	return w.b
}

// INDIRECT_SYMBOL_LOCAL marks an indirect symbol table entry for a local symbol.
const INDIRECT_SYMBOL_LOCAL uint32 = 0x80000000

type section struct {
	name      string
	offset    uint64
	size      uint64
	flags     uint32
	reserved1 uint32
	reserved2 uint32
}

func (img Image) pointer(off uint64) uint64 {
	if img.ImageRelativePointers {
		// high bits mimic the next/bind fields of a chained rebase
		return off | 0x0010_0000_0000_0000
	}
	return img.TextVMAddr + off
}

func (img Image) writeObjC(w *writer, cstr func(string) uint64) {
	if len(img.Classes) == 0 {
		return
	}
	if len(img.Classes)*classStride > ClassROOff-DataOff {
		panic("machotest: too many classes")
	}

	selrefs := &arena{name: "selrefs", cur: SelRefsOff, end: DataOff}
	lists := &arena{name: "method lists", cur: MethodListOff, end: LinkEditOff, alignment: 8}
	typeEnc := cstr("v16@0:8")

	methodList := func(methods []Method) uint64 {
		if len(methods) == 0 {
			return 0
		}
		flags := uint32(24)
		entsize := uint64(24)
		if img.RelativeMethods {
			entsize = 12
			flags = 12 | 0x80000000
			if img.DirectSelectors {
				flags |= 0x40000000
			}
		}
		ml := lists.alloc(8 + entsize*uint64(len(methods)))
		w.u32(ml, flags)
		w.u32(ml+4, uint32(len(methods)))
		for i, m := range methods {
			ent := ml + 8 + uint64(i)*entsize
			sel := cstr(m.Selector)
			if !img.RelativeMethods {
				w.u64(ent, img.pointer(sel))
				w.u64(ent+8, img.pointer(typeEnc))
				w.u64(ent+16, img.pointer(m.Imp))
				continue
			}
			target := sel
			if !img.DirectSelectors {
				target = selrefs.alloc(8)
				w.u64(target, img.pointer(sel))
			}
			w.u32(ent, uint32(int32(int64(target)-int64(ent))))
			w.u32(ent+4, uint32(int32(int64(typeEnc)-int64(ent+4))))
			w.u32(ent+8, uint32(int32(int64(m.Imp)-int64(ent+8))))
		}
		return ml
	}

	for k, c := range img.Classes {
		cls := DataOff + uint64(k)*classStride
		meta := cls + 0x28
		ro := ClassROOff + uint64(k)*classROStride
		metaRO := ro + classROSize
		name := cstr(c.Name)

		w.u64(DataConstOff+uint64(k)*8, img.pointer(cls))

		data, metaData := img.pointer(ro), img.pointer(metaRO)
		if img.TagDataPointers {
			data |= 0x3
			metaData |= 0x3
		}

		w.u64(cls, img.pointer(meta))
		w.u64(cls+32, data)
		w.u64(meta+32, metaData)

		for _, r := range []struct {
			off     uint64
			flags   uint32
			methods []Method
		}{
			{ro, 0, c.Methods},
			{metaRO, 1, c.ClassMethods},
		} {
			w.u32(r.off, r.flags)
			w.u64(r.off+0x18, img.pointer(name))
			if ml := methodList(r.methods); ml != 0 {
				w.u64(r.off+0x20, img.pointer(ml))
			}
		}
	}
}

// A FatArch is one slice of a fat file.
type FatArch struct {
	CPU    types.CPU
	Offset uint32
	Data   []byte
}

// Fat builds a fat file containing arches at their offsets.
func Fat(arches ...FatArch) []byte {
	size := uint64(8 + 20*len(arches))
	for _, a := range arches {
		if end := uint64(a.Offset) + uint64(len(a.Data)); end > size {
			size = end
		}
	}
	b := make([]byte, size)
	binary.BigEndian.PutUint32(b[0:], uint32(types.MagicFat))
	binary.BigEndian.PutUint32(b[4:], uint32(len(arches)))
	for i, a := range arches {
		rec := b[8+20*i:]
		binary.BigEndian.PutUint32(rec[0:], uint32(a.CPU))
		binary.BigEndian.PutUint32(rec[8:], a.Offset)
		binary.BigEndian.PutUint32(rec[12:], uint32(len(a.Data)))
		binary.BigEndian.PutUint32(rec[16:], 12)
		copy(b[a.Offset:], a.Data)
	}
	return b
}
