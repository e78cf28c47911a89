package macho

import (
	"bytes"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/symp/internal/machotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripTag(t *testing.T) {
	assert.Equal(t, uint64(0x100001234), StripTag(0x8010000100001234))
	assert.Equal(t, uint64(0x2200), StripTag(0x0010000000002200))
	assert.Equal(t, uint64(0x100002200), stripDataTag(0x100002203))
}

func TestFindObjCMethod(t *testing.T) {
	classes := []machotest.Class{
		{
			Name: "Bar",
			Methods: []machotest.Method{
				{Selector: "bar", Imp: 0x800},
			},
		},
		{
			Name: "Foo",
			Methods: []machotest.Method{
				{Selector: "init", Imp: 0x820},
				{Selector: "bar", Imp: 0x840},
				{Selector: "bar:baz:", Imp: 0x860},
			},
			ClassMethods: []machotest.Method{
				{Selector: "sharedFoo", Imp: 0x880},
			},
		},
		{
			Name: "Foo",
			Methods: []machotest.Method{
				{Selector: "shadowed", Imp: 0x8a0},
			},
		},
	}

	layouts := []struct {
		name string
		img  machotest.Image
	}{
		{name: "absolute", img: machotest.Image{}},
		{name: "relative", img: machotest.Image{RelativeMethods: true}},
		{name: "relative direct selectors", img: machotest.Image{RelativeMethods: true, DirectSelectors: true}},
		{name: "image relative pointers", img: machotest.Image{RelativeMethods: true, ImageRelativePointers: true}},
		{name: "tagged data pointers", img: machotest.Image{TagDataPointers: true}},
	}

	tests := []struct {
		symbol  string
		wantOff int64
		wantErr error
	}{
		{symbol: "-[Foo bar]", wantOff: 0x840},
		{symbol: "-[Foo bar:baz:]", wantOff: 0x860},
		{symbol: "-[Bar bar]", wantOff: 0x800},
		{symbol: "+[Foo sharedFoo]", wantOff: 0x880},
		{symbol: "+[Foo bar]", wantErr: ErrNotFound},
		{symbol: "-[Foo sharedFoo]", wantErr: ErrNotFound},
		{symbol: "-[Foo shadowed]", wantErr: ErrNotFound},
		{symbol: "-[Baz bar]", wantErr: ErrNotFound},
		{symbol: "+[Bar bar]", wantErr: ErrNotFound},
	}

	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			img := l.img
			img.CPU = types.CPUArm64
			img.Classes = classes
			r := bytes.NewReader(img.Build())
			info, err := ScanImage(r, Slice{CPU: types.CPUArm64})
			require.NoError(t, err)

			for _, tt := range tests {
				t.Run(tt.symbol, func(t *testing.T) {
					sym := ParseSymbol(tt.symbol)
					require.Equal(t, KindObjC, sym.Kind)
					loc, err := FindObjCMethod(r, info, sym)
					if tt.wantErr != nil {
						assert.ErrorIs(t, err, tt.wantErr)
						return
					}
					require.NoError(t, err)
					assert.Equal(t, tt.wantOff, loc.FileOffset)
					assert.Equal(t, StrategyObjC, loc.Strategy)
					assert.Zero(t, loc.MaxPatchLen)
				})
			}
		})
	}
}

func TestFindObjCMethodRelativeImp(t *testing.T) {
	fat := machotest.Fat(machotest.FatArch{
		CPU:    types.CPUArm64,
		Offset: 0x4000,
		Data: machotest.Image{
			CPU:             types.CPUArm64,
			RelativeMethods: true,
			Classes: []machotest.Class{
				{Name: "Foo", Methods: []machotest.Method{{Selector: "bar", Imp: 0x40}}},
			},
		}.Build(),
	})
	r := bytes.NewReader(fat)
	info, err := ScanImage(r, Slice{CPU: types.CPUArm64, Offset: 0x4000})
	require.NoError(t, err)

	loc, err := FindObjCMethod(r, info, ParseSymbol("-[Foo bar]"))
	require.NoError(t, err)
	assert.Equal(t, int64(0x4000+0x40), loc.FileOffset)

	_, err = FindObjCMethod(r, info, ParseSymbol("+[Foo bar]"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindObjCMethodNoClassList(t *testing.T) {
	r := bytes.NewReader(machotest.Image{CPU: types.CPUArm64}.Build())
	info, err := ScanImage(r, Slice{CPU: types.CPUArm64})
	require.NoError(t, err)

	_, err = FindObjCMethod(r, info, ParseSymbol("-[Foo bar]"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindObjCMethodCorrupt(t *testing.T) {
	dat := machotest.Image{
		CPU:     types.CPUArm64,
		Classes: []machotest.Class{{Name: "Foo", Methods: []machotest.Method{{Selector: "bar", Imp: 0x840}}}},
	}.Build()
	// class list entry pointing far outside the mapped image
	copy(dat[machotest.DataConstOff:], []byte{0, 0, 0, 0, 0x10, 0, 0, 0})
	r := bytes.NewReader(dat)
	info, err := ScanImage(r, Slice{CPU: types.CPUArm64})
	require.NoError(t, err)

	_, err = FindObjCMethod(r, info, ParseSymbol("-[Foo bar]"))
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}
