package macho

import (
	"fmt"
	"strings"

	"github.com/blacktop/go-macho/types"
)

// WalkExportTrie looks up name in an export trie and returns the exported
// address (an offset from the image's mach header). ErrNotFound is returned
// when the trie has no regular, non re-exported, non resolver entry for name.
func WalkExportTrie(trie []byte, name string) (uint64, error) {
	buf := buffer{data: trie}
	visited := make(map[uint64]bool)
	rest := name

	var node uint64
	for {
		if visited[node] {
			return 0, &DecodeError{What: "export trie node (loop)", Offset: node, Size: buf.size()}
		}
		visited[node] = true

		infoLen, p, err := buf.uleb128("export trie terminal size", node)
		if err != nil {
			return 0, err
		}

		if rest == "" {
			if infoLen == 0 {
				return 0, ErrNotFound
			}
			flags, p, err := buf.uleb128("export trie flags", p)
			if err != nil {
				return 0, err
			}
			f := types.ExportFlag(flags)
			if f&types.EXPORT_SYMBOL_FLAGS_KIND_MASK != types.EXPORT_SYMBOL_FLAGS_KIND_REGULAR ||
				f&(types.EXPORT_SYMBOL_FLAGS_REEXPORT|types.EXPORT_SYMBOL_FLAGS_STUB_AND_RESOLVER) != 0 {
				return 0, ErrNotFound
			}
			addr, _, err := buf.uleb128("export trie address", p)
			if err != nil {
				return 0, err
			}
			return addr, nil
		}

		p += infoLen
		count, err := buf.u8("export trie child count", p)
		if err != nil {
			return 0, err
		}
		p++

		next, matched := uint64(0), false
		for i := uint8(0); i < count; i++ {
			label, err := buf.cstring("export trie edge label", p)
			if err != nil {
				return 0, err
			}
			p += uint64(len(label)) + 1
			child, np, err := buf.uleb128("export trie child offset", p)
			if err != nil {
				return 0, err
			}
			p = np
			if label != "" && strings.HasPrefix(rest, label) {
				rest = rest[len(label):]
				next, matched = child, true
				break
			}
		}
		if !matched {
			return 0, ErrNotFound
		}
		if next >= buf.size() {
			return 0, &DecodeError{What: fmt.Sprintf("export trie child of %q", name), Offset: next, Length: 1, Size: buf.size()}
		}
		node = next
	}
}
