package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blacktop/symp/internal/colors"
)

var (
	colorAddr  = colors.ItalicFaint().SprintFunc()
	colorZero  = colors.FaintHiBlue().SprintFunc()
	colorPatch = colors.BoldHiRed().SprintFunc()
)

// HexDump returns a `hexdump -C` style dump of data labelled with file offsets
// starting at off. The first mark bytes (the patch window) are highlighted and
// zero bytes are faint.
func HexDump(data []byte, off uint64, mark int) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow((1 + (len(data)-1)/16) * 80)

	for line := 0; line < len(data); line += 16 {
		end := min(line+16, len(data))
		chunk := data[line:end]

		sb.WriteString(colorAddr(fmt.Sprintf("%08x", off+uint64(line))))
		sb.WriteString("  ")
		for i := 0; i < 16; i++ {
			if i == 8 {
				sb.WriteByte(' ')
			}
			if i >= len(chunk) {
				sb.WriteString("   ")
				continue
			}
			b := hex.EncodeToString(chunk[i : i+1])
			switch {
			case line+i < mark:
				b = colorPatch(b)
			case chunk[i] == 0:
				b = colorZero(b)
			}
			sb.WriteString(b)
			sb.WriteByte(' ')
		}
		sb.WriteString(" |")
		for _, c := range chunk {
			sb.WriteByte(toChar(c))
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}

func toChar(b byte) byte {
	if b < 32 || b > 126 {
		return '.'
	}
	return b
}
