package patches

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		x86_64 string
		arm64  string
	}{
		{name: "ret", x86_64: "c3", arm64: "c0035fd6"},
		{name: "ret0", x86_64: "4831c0c3", arm64: "000080d2c0035fd6"},
		{name: "ret1", x86_64: "4831c0b001c3", arm64: "200080d2c0035fd6"},
		{name: "ret2", x86_64: "4831c0b002c3", arm64: "400080d2c0035fd6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.True(t, p.Builtin())

			x86, err := p.For(types.CPUAmd64)
			require.NoError(t, err)
			assert.Equal(t, tt.x86_64, hex.EncodeToString(x86))

			arm, err := p.For(types.CPUArm64)
			require.NoError(t, err)
			assert.Equal(t, tt.arm64, hex.EncodeToString(arm))

			_, err = p.For(types.CPUArm)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, []string{"ret", "ret0", "ret1", "ret2"}, Names())
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("nop")
	assert.ErrorContains(t, err, "ret, ret0, ret1, ret2")
}

func TestFromHex(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr string
	}{
		{name: "plain", in: "c0035fd6", want: []byte{0xc0, 0x03, 0x5f, 0xd6}},
		{name: "upper", in: "C0035FD6", want: []byte{0xc0, 0x03, 0x5f, 0xd6}},
		{name: "spaced", in: "c0 03 5f d6", want: []byte{0xc0, 0x03, 0x5f, 0xd6}},
		{name: "multi line", in: "\t4831c0\n  c3 ", want: []byte{0x48, 0x31, 0xc0, 0xc3}},
		{name: "odd", in: "c0035", wantErr: "should be even"},
		{name: "invalid", in: "c0g3", wantErr: "invalid character 'g'"},
		{name: "prefix", in: "0xc3", wantErr: "invalid character 'x'"},
		{name: "empty", in: "  ", wantErr: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromHex(tt.in)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, p.Builtin())
			got, err := p.For(types.CPUArm64)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			got, err = p.For(types.CPUAmd64)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "raw payloads are the same for every arch")
		})
	}
}

func TestFromHexRoundTrip(t *testing.T) {
	for _, in := range []string{"00", "ff", "DeadBeef", "0123456789abcdefABCDEF", "c0035fd6000080d2"} {
		p, err := FromHex(in)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(in), hex.EncodeToString(p.Raw))
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "patch.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x20, 0x03, 0xd5}, 0o644))
	p, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x20, 0x03, 0xd5}, p.Raw)

	empty := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = FromFile(empty)
	assert.ErrorContains(t, err, "empty")

	_, err = FromFile(filepath.Join(dir, "missing.bin"))
	assert.ErrorContains(t, err, "failed to read patch file")
}
