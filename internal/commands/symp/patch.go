package symp

import (
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/blacktop/symp/pkg/macho"
	"github.com/pkg/errors"
)

// PatchTooLargeError is returned when a payload does not fit the patch window of a match.
type PatchTooLargeError struct {
	Len int
	Max uint32
}

func (e *PatchTooLargeError) Error() string {
	return fmt.Sprintf("patch length(%d) exceeded! (max %d)", e.Len, e.Max)
}

// PatchRangeError is returned when a payload would not fit inside the file.
type PatchRangeError struct {
	Offset int64
	Len    int
	Size   int64
}

func (e *PatchRangeError) Error() string {
	return fmt.Sprintf("patch of %d bytes at %#x does not fit in file of size %#x", e.Len, uint64(e.Offset), e.Size)
}

// ApplyPatch overwrites len(payload) bytes at loc in a file of the given size.
// Nothing is written when the payload is larger than the match allows or
// would run past the end of the file.
func ApplyPatch(w io.WriterAt, loc macho.Location, payload []byte, size int64) error {
	if loc.MaxPatchLen != 0 && len(payload) > int(loc.MaxPatchLen) {
		return &PatchTooLargeError{Len: len(payload), Max: loc.MaxPatchLen}
	}
	if loc.FileOffset < 0 || loc.FileOffset > size || int64(len(payload)) > size-loc.FileOffset {
		return &PatchRangeError{Offset: loc.FileOffset, Len: len(payload), Size: size}
	}
	n, err := w.WriteAt(payload, loc.FileOffset)
	if err != nil {
		return errors.Wrapf(err, "failed to write patch at %#x", loc.FileOffset)
	}
	if n != len(payload) {
		return fmt.Errorf("short write at %#x: wrote %d of %d bytes", loc.FileOffset, n, len(payload))
	}
	return nil
}

// confirm asks before each slice is patched in --interactive mode.
var confirm = func(msg string) (bool, error) {
	yes := false
	prompt := &survey.Confirm{
		Message: msg,
		Default: false,
	}
	if err := survey.AskOne(prompt, &yes); err != nil {
		if err == terminal.InterruptErr {
			return false, fmt.Errorf("exiting")
		}
		return false, err
	}
	return yes, nil
}
