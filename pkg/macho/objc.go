package macho

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types/objc"
)

// pointerMask keeps the 47 address bits of a tagged or chained pointer.
const pointerMask = 0x00007fffffffffff

const (
	classDataOffset      = 32 // objc_class_t.data
	classRONameOffset    = 0x18
	classROMethodsOffset = 0x20
	methodListHeaderSize = 8
	relativeMethodSize   = 12
	methodSize           = 24
)

// StripTag removes pointer authentication, tag and chained fixup bits from a pointer.
func StripTag(ptr uint64) uint64 {
	return ptr & pointerMask
}

func stripDataTag(ptr uint64) uint64 {
	return ptr & objc.FAST_DATA_MASK64
}

type objcImage struct {
	buf  buffer
	info *ImageInfo
}

// offset converts a pointer found in the image into an offset from the image start.
func (o objcImage) offset(ptr uint64) uint64 {
	p := StripTag(ptr)
	if o.info.TextVMAddr != 0 && p >= o.info.TextVMAddr {
		return p - o.info.TextVMAddr + o.info.TextFileOff
	}
	return p
}

func (o objcImage) pointer(what string, off uint64) (uint64, error) {
	ptr, err := o.buf.u64(what, off)
	if err != nil {
		return 0, err
	}
	return o.offset(ptr), nil
}

func (o objcImage) cstringAt(what string, ptrOff uint64) (string, error) {
	p, err := o.pointer(what, ptrOff)
	if err != nil {
		return "", err
	}
	return o.buf.cstring(what, p)
}

// FindObjCMethod locates the implementation of an ObjC method by walking the
// image's class list. Only the first class named sym.Class is searched; for
// class methods its metaclass is searched instead.
func FindObjCMethod(r io.ReaderAt, info *ImageInfo, sym Symbol) (Location, error) {
	if info.ObjCClassListOff == 0 || info.MappedDataEnd == 0 {
		return Location{}, ErrNotFound
	}

	buf, err := readAt(r, info.BaseOffset, info.MappedDataEnd, "mapped image")
	if err != nil {
		return Location{}, err
	}
	img := objcImage{buf: buf, info: info}

	nclasses := info.ObjCClassListSize / 8
	for i := uint64(0); i < nclasses; i++ {
		cls, err := img.pointer("class list entry", uint64(info.ObjCClassListOff)+i*8)
		if err != nil {
			return Location{}, err
		}
		if sym.ClassMethod {
			if cls, err = img.pointer("class isa", cls); err != nil {
				return Location{}, err
			}
		}
		data, err := img.buf.u64("class data", cls+classDataOffset)
		if err != nil {
			return Location{}, err
		}
		ro := img.offset(stripDataTag(data))

		name, err := img.cstringAt("class name", ro+classRONameOffset)
		if err != nil {
			return Location{}, err
		}
		if name != sym.Class {
			continue
		}

		methods, err := img.buf.u64("class base methods", ro+classROMethodsOffset)
		if err != nil {
			return Location{}, err
		}
		if StripTag(methods) == 0 {
			return Location{}, ErrNotFound
		}
		imp, err := img.findMethod(img.offset(methods), sym.Selector)
		if err != nil {
			return Location{}, err
		}
		log.WithFields(log.Fields{
			"class":    name,
			"selector": sym.Selector,
			"imp":      fmt.Sprintf("%#x", imp),
		}).Debug("Found ObjC method")
		return Location{
			CPU:        info.CPU,
			FileOffset: info.BaseOffset + int64(imp),
			Strategy:   StrategyObjC,
		}, nil
	}

	return Location{}, ErrNotFound
}

// findMethod searches the method list at off for sel and returns the
// implementation's offset in the image.
func (o objcImage) findMethod(off uint64, sel string) (uint64, error) {
	var ml objc.MethodList
	if err := o.buf.decode("method list", off, &ml); err != nil {
		return 0, err
	}

	entsize := uint64(ml.EntSize())
	relative := ml.UsesRelativeOffsets()
	if (relative && entsize < relativeMethodSize) || (!relative && entsize < methodSize) {
		return 0, fmt.Errorf("method list at %#x has invalid entry size %d", off, entsize)
	}

	for j := uint64(0); j < uint64(ml.Count); j++ {
		ent := off + methodListHeaderSize + j*entsize
		var name string
		var imp uint64
		var err error
		if relative {
			name, imp, err = o.relativeMethod(ent, ml.UsesDirectOffsetsToSelectors())
		} else {
			name, imp, err = o.method(ent)
		}
		if err != nil {
			return 0, err
		}
		if name == sel {
			return imp, nil
		}
	}

	return 0, ErrNotFound
}

func (o objcImage) method(ent uint64) (string, uint64, error) {
	name, err := o.cstringAt("method name", ent)
	if err != nil {
		return "", 0, err
	}
	imp, err := o.pointer("method imp", ent+16)
	if err != nil {
		return "", 0, err
	}
	return name, imp, nil
}

func (o objcImage) relativeMethod(ent uint64, directSelectors bool) (string, uint64, error) {
	nameRel, err := o.buf.i32("relative method name", ent)
	if err != nil {
		return "", 0, err
	}
	impRel, err := o.buf.i32("relative method imp", ent+8)
	if err != nil {
		return "", 0, err
	}

	nameOff, err := o.relative("relative method name", ent, nameRel)
	if err != nil {
		return "", 0, err
	}
	var name string
	if directSelectors {
		name, err = o.buf.cstring("method name", nameOff)
	} else {
		name, err = o.cstringAt("selector reference", nameOff)
	}
	if err != nil {
		return "", 0, err
	}

	imp, err := o.relative("relative method imp", ent+8, impRel)
	if err != nil {
		return "", 0, err
	}
	return name, imp, nil
}

func (o objcImage) relative(what string, field uint64, rel int32) (uint64, error) {
	target := int64(field) + int64(rel)
	if target < 0 || uint64(target) >= o.buf.size() {
		return 0, &DecodeError{What: what, Offset: uint64(target), Length: 1, Size: o.buf.size()}
	}
	return uint64(target), nil
}
