package macho

import (
	"fmt"
	"strconv"
	"strings"
)

// SymbolKind is the resolution strategy family a symbol name selects.
type SymbolKind int

const (
	KindRegular SymbolKind = iota
	KindHexOffset
	KindObjC
)

func (k SymbolKind) String() string {
	switch k {
	case KindHexOffset:
		return "hex offset"
	case KindObjC:
		return "objc method"
	default:
		return "regular"
	}
}

const maxHexDigits = 16

// A Symbol is a classified symbol name.
type Symbol struct {
	Name string
	Kind SymbolKind

	// Offset is the parsed virtual address of a KindHexOffset symbol.
	Offset uint64

	// Class, Selector and ClassMethod describe a KindObjC symbol.
	Class       string
	Selector    string
	ClassMethod bool

	// Warning is set when a name looked like a hex offset or ObjC method but
	// was downgraded to a regular symbol.
	Warning string
}

func (s Symbol) String() string {
	switch s.Kind {
	case KindHexOffset:
		return fmt.Sprintf("%#x", s.Offset)
	case KindObjC:
		sign := "-"
		if s.ClassMethod {
			sign = "+"
		}
		return fmt.Sprintf("%s[%s %s]", sign, s.Class, s.Selector)
	default:
		return s.Name
	}
}

// ParseSymbol classifies name as a hex offset, an ObjC method or a regular symbol.
func ParseSymbol(name string) Symbol {
	sym := Symbol{Name: name, Kind: KindRegular}

	if strings.HasPrefix(name, "0x") || strings.HasPrefix(name, "0X") {
		digits := strings.TrimLeft(name[2:], "0")
		if len(digits) > maxHexDigits {
			return sym
		}
		for _, c := range digits {
			if !isHexDigit(c) {
				sym.Warning = fmt.Sprintf("invalid char '%c' in hex number, treated as regular symbol", c)
				return sym
			}
		}
		if digits != "" {
			v, err := strconv.ParseUint(digits, 16, 64)
			if err != nil {
				return sym
			}
			sym.Offset = v
		}
		sym.Kind = KindHexOffset
		return sym
	}

	if len(name) >= 3 && (name[0] == '+' || name[0] == '-') && name[1] == '[' && name[len(name)-1] == ']' {
		class, sel, _ := strings.Cut(name[2:len(name)-1], " ")
		if strings.Count(name, " ") != 1 || class == "" || sel == "" {
			sym.Warning = "objc symbol should use 1 space to separate class and selector, treated as regular symbol"
			return sym
		}
		sym.Kind = KindObjC
		sym.Class = class
		sym.Selector = sel
		sym.ClassMethod = name[0] == '+'
		return sym
	}

	return sym
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
