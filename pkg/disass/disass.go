// Package disass decodes the instructions at a symbol match for preview.
package disass

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/blacktop/arm64-cgo/disassemble"
	"github.com/blacktop/go-macho/types"
	"golang.org/x/arch/x86/x86asm"
)

// An Instruction is one decoded instruction.
type Instruction struct {
	Address uint64
	OpCodes string
	Text    string
	// Invalid is set when the bytes did not decode and Text is a data directive.
	Invalid bool
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s:  %s\t%s", colorAddr("%#08x", i.Address), colorOpCodes(i.OpCodes), ColorInstruction(i.Text))
}

// Disassemble decodes up to count instructions from data, which starts at addr.
func Disassemble(cpu types.CPU, data []byte, addr uint64, count int) ([]Instruction, error) {
	switch cpu {
	case types.CPUArm64:
		return disassembleArm64(data, addr, count), nil
	case types.CPUAmd64:
		return disassembleX86_64(data, addr, count), nil
	default:
		return nil, fmt.Errorf("disassembly is not supported for cpu %s", cpu)
	}
}

func disassembleArm64(data []byte, addr uint64, count int) []Instruction {
	var results [1024]byte
	var instrs []Instruction

	for off := 0; off+4 <= len(data) && len(instrs) < count; off += 4 {
		instrValue := binary.LittleEndian.Uint32(data[off:])
		pc := addr + uint64(off)

		instruction, err := disassemble.Decompose(pc, instrValue, &results)
		if err != nil {
			instrs = append(instrs, Instruction{
				Address: pc,
				OpCodes: disassemble.GetOpCodeByteString(instrValue),
				Text:    fmt.Sprintf(".long\t%#x ; (%s)", instrValue, err.Error()),
				Invalid: true,
			})
			continue
		}

		instrs = append(instrs, Instruction{
			Address: pc,
			OpCodes: disassemble.GetOpCodeByteString(instrValue),
			Text:    instruction.String(),
		})
	}

	return instrs
}

func disassembleX86_64(data []byte, addr uint64, count int) []Instruction {
	var instrs []Instruction

	for off := 0; off < len(data) && len(instrs) < count; {
		pc := addr + uint64(off)

		inst, err := x86asm.Decode(data[off:], 64)
		if err != nil || inst.Len == 0 {
			instrs = append(instrs, Instruction{
				Address: pc,
				OpCodes: hex.EncodeToString(data[off : off+1]),
				Text:    fmt.Sprintf(".byte\t%#x", data[off]),
				Invalid: true,
			})
			off++
			continue
		}

		instrs = append(instrs, Instruction{
			Address: pc,
			OpCodes: hex.EncodeToString(data[off : off+inst.Len]),
			Text:    x86asm.IntelSyntax(inst, pc, nil),
		})
		off += inst.Len
	}

	return instrs
}
