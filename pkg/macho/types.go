package macho

import (
	"strings"

	"github.com/blacktop/go-macho/types"
)

const (
	fileHeaderSize64  = types.FileHeaderSize64
	loadCmdHeaderSize = 8
	segment64Size     = 72
	section64Size     = 80
	nlist64Size       = 16
	fatHeaderSize     = 8
	fatArchSize       = 20
)

// segName returns the name of a segment with its NUL padding removed.
func segName(s *types.Segment64) string { return cstr(s.Name[:]) }

// A Section64 is a 64-bit Mach-O section header.
type Section64 struct {
	Name     [16]byte
	Seg      [16]byte
	Addr     uint64
	Size     uint64
	Offset   uint32
	Align    uint32
	Reloff   uint32
	Nreloc   uint32
	Flags    SectionFlag
	Reserve1 uint32
	Reserve2 uint32
	Reserve3 uint32
}

// SectName returns the section name. Names that use all 16 bytes have no NUL.
func (s Section64) SectName() string { return cstr(s.Name[:]) }

type SectionFlag uint32

const (
	SECTION_TYPE   SectionFlag = 0x000000ff /* 256 section types */
	S_SYMBOL_STUBS SectionFlag = 0x8        /* section with only symbol stubs, byte size of stub in the reserved2 field */
)

func (t SectionFlag) IsSymbolStubs() bool {
	return (t & SECTION_TYPE) == S_SYMBOL_STUBS
}

// An Nlist64 is a Mach-O 64-bit symbol table entry.
type Nlist64 struct {
	Name  uint32
	Type  NType
	Sect  uint8
	Desc  uint16
	Value uint64
}

type NType uint8

/*
 * Values for N_TYPE bits of the n_type field.
 */
const (
	N_TYPE NType = 0x0e /* mask for the type bits */
	N_UNDF NType = 0x0  /* undefined, n_sect == NO_SECT */
	N_ABS  NType = 0x2  /* absolute, n_sect == NO_SECT */
	N_SECT NType = 0xe  /* defined in section number n_sect */
	N_EXT  NType = 0x01 /* external symbol bit */
)

func (t NType) IsDefinedInSection() bool {
	return (t & N_TYPE) == N_SECT
}

// Indirect symbol table entries that are not symbol table indices.
const (
	INDIRECT_SYMBOL_LOCAL uint32 = 0x80000000
	INDIRECT_SYMBOL_ABS   uint32 = 0x40000000
)

const (
	segText       = "__TEXT"
	segDataPrefix = "__DATA"
	sectClassList = "__objc_classlist"
)

func cstr(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
