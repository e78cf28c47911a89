package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/symp/pkg/macho"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.out")
	require.NoError(t, os.WriteFile(file, []byte{0xcf, 0xfa, 0xed, 0xfe}, 0o644))
	patch := filepath.Join(dir, "patch.bin")
	require.NoError(t, os.WriteFile(patch, []byte{0xc3}, 0o644))

	tests := []struct {
		name      string
		settings  map[string]any
		args      []string
		wantMode  Mode
		wantArchs macho.ArchMask
		wantErr   string
	}{
		{
			name:     "lookup",
			args:     []string{"_main", file},
			wantMode: ModeLookup,
		},
		{
			name:      "archs",
			settings:  map[string]any{"symp.arch": []string{"arm64", "x86_64"}},
			args:      []string{"_main", file},
			wantMode:  ModeLookup,
			wantArchs: macho.ArchArm64 | macho.ArchX86_64,
		},
		{
			name:     "builtin patch",
			settings: map[string]any{"symp.patch": "ret0"},
			args:     []string{"_main", file},
			wantMode: ModePatch,
		},
		{
			name:     "binary patch",
			settings: map[string]any{"symp.binary": patch},
			args:     []string{"_main", file},
			wantMode: ModePatch,
		},
		{
			name:     "hex patch",
			settings: map[string]any{"symp.hex": "c0 03 5f d6", "symp.interactive": true},
			args:     []string{"_main", file},
			wantMode: ModePatch,
		},
		{
			name:     "two payload sources",
			settings: map[string]any{"symp.patch": "ret", "symp.hex": "c3"},
			args:     []string{"_main", file},
			wantErr:  "only one of",
		},
		{
			name:     "unknown builtin",
			settings: map[string]any{"symp.patch": "nop"},
			args:     []string{"_main", file},
			wantErr:  "unknown builtin patch",
		},
		{
			name:     "odd hex",
			settings: map[string]any{"symp.hex": "c"},
			args:     []string{"_main", file},
			wantErr:  "even",
		},
		{
			name:     "bad arch",
			settings: map[string]any{"symp.arch": []string{"ppc"}},
			args:     []string{"_main", file},
			wantErr:  "unsupported arch 'ppc'",
		},
		{
			name:     "interactive lookup",
			settings: map[string]any{"symp.interactive": true},
			args:     []string{"_main", file},
			wantErr:  "--interactive",
		},
		{
			name:    "missing file",
			args:    []string{"_main", filepath.Join(dir, "nope")},
			wantErr: "failed to stat",
		},
		{
			name:    "directory",
			args:    []string{"_main", dir},
			wantErr: "is a directory",
		},
		{
			name:    "one arg",
			args:    []string{"_main"},
			wantErr: "expected <symbol> <file>",
		},
		{
			name:    "empty symbol",
			args:    []string{"", file},
			wantErr: "symbol must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range tt.settings {
				viper.Set(k, v)
			}

			c, err := LoadConfig(tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, c.Mode())
			assert.Equal(t, tt.wantArchs, c.Archs)
			assert.Equal(t, tt.args[0], c.Symbol)
			assert.Equal(t, tt.args[1], c.Path)
		})
	}
}
