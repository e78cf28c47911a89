package disass

import (
	"regexp"
	"strings"

	"github.com/blacktop/symp/internal/colors"
)

// disassembly colors
var colorOp = colors.Bold().SprintFunc()
var colorRegs = colors.BoldHiBlue().SprintFunc()
var colorImm = colors.BoldMagenta().SprintFunc()
var colorAddr = colors.BoldMagenta().SprintfFunc()
var colorOpCodes = colors.FaintHiWhite().SprintFunc()

var (
	immMatch = regexp.MustCompile(`#?-?0x[0-9a-f]+`)
	regMatch = regexp.MustCompile(`\W([wx][0-9]{1,2}|[re]?[abcd]x|[re]?[sd]i|[re]?[sb]p|r[0-9]{1,2}[dwb]?|sp|lr|fp|xzr|wzr)\b`)
)

// ColorInstruction highlights the mnemonic, immediates and registers of a
// disassembled instruction.
func ColorInstruction(instr string) string {
	i := strings.IndexAny(instr, " \t")
	if i < 0 {
		return colorOp(instr)
	}
	op, operands := instr[:i], instr[i:]
	operands = immMatch.ReplaceAllStringFunc(operands, func(s string) string {
		return colorImm(s)
	})
	operands = regMatch.ReplaceAllStringFunc(operands, func(s string) string {
		return string(s[0]) + colorRegs(s[1:])
	})
	return colorOp(op) + operands
}
