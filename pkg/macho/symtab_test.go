package macho

import (
	"bytes"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/symp/internal/machotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadImage(t *testing.T, img machotest.Image) (*bytes.Reader, *ImageInfo, *SymbolTable) {
	t.Helper()
	r := bytes.NewReader(img.Build())
	info, err := ScanImage(r, Slice{CPU: img.CPU})
	require.NoError(t, err)
	tab, err := LoadSymbolTable(r, info)
	require.NoError(t, err)
	return r, info, tab
}

func TestScanSymtab(t *testing.T) {
	_, info, tab := loadImage(t, machotest.Image{
		CPU: types.CPUArm64,
		Symbols: []machotest.Symbol{
			{Name: "_undef", Type: machotest.NUndf | machotest.NExt, Value: 0x100000800},
			{Name: "_main", Type: machotest.NSect | machotest.NExt, Value: 0x1000},
			{Name: "_abs", Type: 0x2, Value: 0x100000900},
		},
	})

	info.TextVMSlide = -0x100
	info.BaseOffset = 0x4000

	loc, err := ScanSymtab(info, tab, "_main")
	require.NoError(t, err)
	assert.Equal(t, int64(0x4000-0x100+0x1000), loc.FileOffset)
	assert.Equal(t, uint32(0), loc.MaxPatchLen)
	assert.Equal(t, StrategySymtab, loc.Strategy)
	assert.Equal(t, types.CPUArm64, loc.CPU)

	_, err = ScanSymtab(info, tab, "_undef")
	assert.ErrorIs(t, err, ErrNotFound, "undefined symbols are skipped")
	_, err = ScanSymtab(info, tab, "_abs")
	assert.ErrorIs(t, err, ErrNotFound, "absolute symbols are skipped")
	_, err = ScanSymtab(info, tab, "_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanSymtabNoTable(t *testing.T) {
	_, info, tab := loadImage(t, machotest.Image{CPU: types.CPUArm64})
	assert.Nil(t, tab)
	_, err := ScanSymtab(info, tab, "_main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanStubs(t *testing.T) {
	tests := []struct {
		name    string
		cpu     types.CPU
		stubs   []string
		symbol  string
		wantOff int64
		wantLen uint32
	}{
		{
			name:    "arm64 first slot",
			cpu:     types.CPUArm64,
			stubs:   []string{"_printf", "_puts"},
			symbol:  "_printf",
			wantOff: machotest.StubsOff,
			wantLen: 12,
		},
		{
			name:    "arm64 second slot",
			cpu:     types.CPUArm64,
			stubs:   []string{"_printf", "_puts"},
			symbol:  "_puts",
			wantOff: machotest.StubsOff + 12,
			wantLen: 12,
		},
		{
			name:    "x86_64 after local sentinel",
			cpu:     types.CPUAmd64,
			stubs:   []string{"", "_exit"},
			symbol:  "_exit",
			wantOff: machotest.StubsOff + 6,
			wantLen: 6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, info, tab := loadImage(t, machotest.Image{CPU: tt.cpu, Stubs: tt.stubs})
			loc, err := ScanStubs(r, info, tab, tt.symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOff, loc.FileOffset)
			assert.Equal(t, tt.wantLen, loc.MaxPatchLen)
			assert.Equal(t, StrategyStubs, loc.Strategy)
		})
	}
}

func TestScanStubsNotFound(t *testing.T) {
	r, info, tab := loadImage(t, machotest.Image{CPU: types.CPUArm64, Stubs: []string{"", "_puts"}})
	_, err := ScanStubs(r, info, tab, "_printf")
	assert.ErrorIs(t, err, ErrNotFound)

	info.StubLen = 0
	_, err = ScanStubs(r, info, tab, "_puts")
	assert.ErrorIs(t, err, ErrNotFound, "stub scan needs a stub size")
}

func TestScanStubsBadIndex(t *testing.T) {
	r, info, tab := loadImage(t, machotest.Image{CPU: types.CPUArm64, Stubs: []string{"_puts"}})
	tab.nsyms = 0
	_, err := ScanStubs(r, info, tab, "_puts")
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}
