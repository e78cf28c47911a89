package macho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/symp/internal/machotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		name    string
		want    ArchMask
		wantErr bool
	}{
		{name: "x86_64", want: ArchX86_64},
		{name: "arm64", want: ArchArm64},
		{name: "ARM64", want: ArchArm64},
		{name: "arm64e", wantErr: true},
		{name: "i386", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArch(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func fatFile() []byte {
	return machotest.Fat(
		machotest.FatArch{CPU: types.CPUAmd64, Offset: 0x1000, Data: machotest.Image{CPU: types.CPUAmd64}.Build()},
		machotest.FatArch{CPU: types.CPUArm64, Offset: 0x5000, Data: machotest.Image{CPU: types.CPUArm64}.Build()},
	)
}

func TestSlices(t *testing.T) {
	thin := machotest.Image{CPU: types.CPUArm64}.Build()

	tests := []struct {
		name        string
		data        []byte
		filter      ArchMask
		want        []Slice
		wantMissing ArchMask
	}{
		{
			name: "thin",
			data: thin,
			want: []Slice{{CPU: types.CPUArm64, Offset: 0, Size: uint64(len(thin))}},
		},
		{
			name: "fat all",
			data: fatFile(),
			want: []Slice{
				{CPU: types.CPUAmd64, Offset: 0x1000, Size: machotest.ImageSize},
				{CPU: types.CPUArm64, Offset: 0x5000, Size: machotest.ImageSize},
			},
		},
		{
			name:   "fat filtered",
			data:   fatFile(),
			filter: ArchArm64,
			want:   []Slice{{CPU: types.CPUArm64, Offset: 0x5000, Size: machotest.ImageSize}},
		},
		{
			name:        "thin missing arch",
			data:        thin,
			filter:      ArchX86_64,
			wantMissing: ArchX86_64,
		},
		{
			name:        "thin partially missing",
			data:        thin,
			filter:      ArchX86_64 | ArchArm64,
			want:        []Slice{{CPU: types.CPUArm64, Offset: 0, Size: uint64(len(thin))}},
			wantMissing: ArchX86_64,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slices(bytes.NewReader(tt.data), tt.filter)
			if tt.wantMissing != 0 {
				var me *MissingArchError
				require.ErrorAs(t, err, &me)
				assert.Equal(t, tt.wantMissing, me.Missing)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlicesUnsupportedCPU(t *testing.T) {
	dat := machotest.Fat(
		machotest.FatArch{CPU: types.CPUArm, Offset: 0x1000, Data: make([]byte, 0x10)},
		machotest.FatArch{CPU: types.CPUArm64, Offset: 0x2000, Data: machotest.Image{CPU: types.CPUArm64}.Build()},
	)
	got, err := Slices(bytes.NewReader(dat), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.CPUArm64, got[0].CPU)
}

func TestSlicesBadInput(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := Slices(bytes.NewReader([]byte("#!/bin/sh\necho hi\n")), 0)
		assert.ErrorIs(t, err, ErrNotMachO)
	})
	t.Run("32-bit", func(t *testing.T) {
		dat := make([]byte, 64)
		binary.LittleEndian.PutUint32(dat, 0xfeedface)
		_, err := Slices(bytes.NewReader(dat), 0)
		assert.ErrorIs(t, err, ErrNotMachO)
	})
	t.Run("too short", func(t *testing.T) {
		_, err := Slices(bytes.NewReader([]byte{0xcf, 0xfa}), 0)
		assert.ErrorIs(t, err, ErrNotMachO)
	})
	t.Run("too many arches", func(t *testing.T) {
		dat := make([]byte, 8)
		binary.BigEndian.PutUint32(dat, uint32(types.MagicFat))
		binary.BigEndian.PutUint32(dat[4:], 129)
		_, err := Slices(bytes.NewReader(dat), 0)
		assert.ErrorContains(t, err, "exceeds maximum")
	})
	t.Run("truncated arch table", func(t *testing.T) {
		dat := make([]byte, 8+20)
		binary.BigEndian.PutUint32(dat, uint32(types.MagicFat))
		binary.BigEndian.PutUint32(dat[4:], 2)
		_, err := Slices(bytes.NewReader(dat), 0)
		var de *DecodeError
		assert.ErrorAs(t, err, &de)
	})
}

func TestMissingArchError(t *testing.T) {
	err := &MissingArchError{Missing: ArchX86_64 | ArchArm64}
	assert.Equal(t, "arch 'x86_64', 'arm64' not found in file", err.Error())
}
