// Package patches provides the builtin patch payloads and loaders for user supplied ones.
package patches

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// A Payload is the bytes to write at a match. Builtins carry machine code for
// each architecture; raw payloads are written as-is to every architecture.
type Payload struct {
	Name   string
	Raw    []byte
	X86_64 []byte
	Arm64  []byte
}

// For returns the payload bytes for cpu.
func (p *Payload) For(cpu types.CPU) ([]byte, error) {
	if p.Raw != nil {
		return p.Raw, nil
	}
	switch cpu {
	case types.CPUAmd64:
		return p.X86_64, nil
	case types.CPUArm64:
		return p.Arm64, nil
	}
	return nil, fmt.Errorf("builtin patch '%s' has no code for cpu %s", p.Name, cpu)
}

// Builtin returns true when the payload has per architecture code.
func (p *Payload) Builtin() bool { return p.Raw == nil }

// Builtins are the named patches available with --patch.
var Builtins = map[string]Payload{
	"ret": {
		Name:   "ret",
		X86_64: []byte{0xc3},                   // ret
		Arm64:  []byte{0xc0, 0x03, 0x5f, 0xd6}, // ret
	},
	"ret0": {
		Name:   "ret0",
		X86_64: []byte{0x48, 0x31, 0xc0, 0xc3},                         // xor rax, rax; ret
		Arm64:  []byte{0x00, 0x00, 0x80, 0xd2, 0xc0, 0x03, 0x5f, 0xd6}, // mov x0, #0; ret
	},
	"ret1": {
		Name:   "ret1",
		X86_64: []byte{0x48, 0x31, 0xc0, 0xb0, 0x01, 0xc3},             // xor rax, rax; mov al, 1; ret
		Arm64:  []byte{0x20, 0x00, 0x80, 0xd2, 0xc0, 0x03, 0x5f, 0xd6}, // mov x0, #1; ret
	},
	"ret2": {
		Name:   "ret2",
		X86_64: []byte{0x48, 0x31, 0xc0, 0xb0, 0x02, 0xc3},             // xor rax, rax; mov al, 2; ret
		Arm64:  []byte{0x40, 0x00, 0x80, 0xd2, 0xc0, 0x03, 0x5f, 0xd6}, // mov x0, #2; ret
	},
}

// Names returns the sorted builtin patch names.
func Names() []string {
	names := make([]string, 0, len(Builtins))
	for name := range Builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the builtin patch called name.
func Lookup(name string) (*Payload, error) {
	p, ok := Builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin patch '%s' (available: %s)", name, strings.Join(Names(), ", "))
	}
	return &p, nil
}

// FromHex parses a hex string into a raw payload. Whitespace between digits is ignored.
func FromHex(s string) (*Payload, error) {
	var sb strings.Builder
	for _, c := range s {
		switch {
		case unicode.IsSpace(c):
			continue
		case !isHexDigit(c):
			return nil, fmt.Errorf("invalid character '%c' in hex string", c)
		}
		sb.WriteRune(c)
	}
	digits := sb.String()
	if len(digits) == 0 {
		return nil, errors.New("hex string is empty")
	}
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("hex string length should be even (got %d digits)", len(digits))
	}
	dat, err := hex.DecodeString(digits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode hex string")
	}
	return &Payload{Name: "hex", Raw: dat}, nil
}

// FromFile reads a raw payload from path.
func FromFile(path string) (*Payload, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read patch file %s", path)
	}
	if len(dat) == 0 {
		return nil, fmt.Errorf("patch file %s is empty", path)
	}
	return &Payload{Name: path, Raw: dat}, nil
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
