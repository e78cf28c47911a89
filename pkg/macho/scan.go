package macho

import (
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// ImageInfo is the summary of one image's load commands needed to resolve symbols.
// A zero field means the corresponding load command or section was not present.
type ImageInfo struct {
	CPU        types.CPU
	BaseOffset int64

	TextVMAddr  uint64
	TextFileOff uint64
	// TextVMSlide is the __TEXT file offset minus its vm address.
	TextVMSlide int64

	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32

	ExportOff  uint32
	ExportSize uint32

	IndirectSymOff uint32

	StubsOff         uint32
	StubsSize        uint64
	StubsIndirectIdx uint32
	StubLen          uint32

	ObjCClassListOff  uint32
	ObjCClassListSize uint64

	// MappedDataEnd is the end of the highest __TEXT or __DATA* segment file range.
	MappedDataEnd uint64
}

// ScanImage reads the 64-bit Mach-O header at s.Offset and walks its load commands once.
func ScanImage(r io.ReaderAt, s Slice) (*ImageInfo, error) {
	hbuf, err := readAt(r, s.Offset, fileHeaderSize64, "mach header")
	if err != nil {
		return nil, err
	}

	var hdr types.FileHeader
	if err := hbuf.decode("mach header", 0, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != types.Magic64 {
		return nil, errors.Wrapf(ErrNotMachO, "bad magic %#x for slice %s", uint32(hdr.Magic), s)
	}

	info := &ImageInfo{
		CPU:        hdr.CPU,
		BaseOffset: s.Offset,
	}

	cmds, err := readAt(r, s.Offset+fileHeaderSize64, uint64(hdr.SizeCommands), "load commands")
	if err != nil {
		return nil, err
	}

	var haveDyldInfo bool
	var off uint64
	for i := uint32(0); i < hdr.NCommands; i++ {
		cmd, err := cmds.u32(fmt.Sprintf("load command %d", i), off)
		if err != nil {
			return nil, err
		}
		lc := types.LoadCmd(cmd)
		siz, err := cmds.u32(fmt.Sprintf("load command %d (%s) size", i, lc), off+4)
		if err != nil {
			return nil, err
		}
		if siz < loadCmdHeaderSize {
			return nil, fmt.Errorf("load command %d (%s) has invalid size %d", i, lc, siz)
		}
		rec, err := cmds.slice(fmt.Sprintf("load command %d (%s)", i, lc), off, uint64(siz))
		if err != nil {
			return nil, err
		}
		cb := buffer{data: rec}

		switch lc {
		case types.LC_SEGMENT_64:
			if err := info.addSegment(cb); err != nil {
				return nil, err
			}
		case types.LC_SYMTAB:
			var st types.SymtabCmd
			if err := cb.decode("LC_SYMTAB", 0, &st); err != nil {
				return nil, err
			}
			info.Symoff = st.Symoff
			info.Nsyms = st.Nsyms
			info.Stroff = st.Stroff
			info.Strsize = st.Strsize
		case types.LC_DYSYMTAB:
			var dst types.DysymtabCmd
			if err := cb.decode("LC_DYSYMTAB", 0, &dst); err != nil {
				return nil, err
			}
			info.IndirectSymOff = dst.Indirectsymoff
		case types.LC_DYLD_INFO, types.LC_DYLD_INFO_ONLY:
			var di types.DyldInfoCmd
			if err := cb.decode(lc.String(), 0, &di); err != nil {
				return nil, err
			}
			info.ExportOff = di.ExportOff
			info.ExportSize = di.ExportSize
			haveDyldInfo = true
		case types.LC_DYLD_EXPORTS_TRIE:
			var led types.LinkEditDataCmd
			if err := cb.decode("LC_DYLD_EXPORTS_TRIE", 0, &led); err != nil {
				return nil, err
			}
			if !haveDyldInfo {
				info.ExportOff = led.Offset
				info.ExportSize = led.Size
			}
		}

		off += uint64(siz)
	}

	log.WithFields(log.Fields{
		"arch":       ArchName(info.CPU),
		"base":       fmt.Sprintf("%#x", info.BaseOffset),
		"text_slide": fmt.Sprintf("%#x", info.TextVMSlide),
		"export":     fmt.Sprintf("%#x", info.ExportOff),
		"symtab":     fmt.Sprintf("%#x", info.Symoff),
		"stubs":      fmt.Sprintf("%#x", info.StubsOff),
		"classlist":  fmt.Sprintf("%#x", info.ObjCClassListOff),
	}).Debug("Scanned load commands")

	return info, nil
}

func (info *ImageInfo) addSegment(cb buffer) error {
	var seg types.Segment64
	if err := cb.decode("LC_SEGMENT_64", 0, &seg); err != nil {
		return err
	}
	name := segName(&seg)
	isText := name == segText
	isData := strings.HasPrefix(name, segDataPrefix)
	if !isText && !isData {
		return nil
	}

	if end := seg.Offset + seg.Filesz; end > info.MappedDataEnd {
		info.MappedDataEnd = end
	}
	if isText {
		info.TextVMAddr = seg.Addr
		info.TextFileOff = seg.Offset
		info.TextVMSlide = int64(seg.Offset) - int64(seg.Addr)
	}

	for j := uint32(0); j < seg.Nsect; j++ {
		var sect Section64
		if err := cb.decode(fmt.Sprintf("%s section %d", name, j), segment64Size+uint64(j)*section64Size, &sect); err != nil {
			return err
		}
		switch {
		case isText && info.StubsOff == 0 && sect.Flags.IsSymbolStubs():
			info.StubsOff = sect.Offset
			info.StubsSize = sect.Size
			info.StubsIndirectIdx = sect.Reserve1
			info.StubLen = sect.Reserve2
		case isData && sect.SectName() == sectClassList:
			info.ObjCClassListOff = sect.Offset
			info.ObjCClassListSize = sect.Size
		}
	}

	return nil
}
