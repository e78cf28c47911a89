/*
Copyright © 2018-2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"strings"

	"github.com/blacktop/symp/pkg/macho"
	"github.com/spf13/pflag"
)

var _ pflag.SliceValue = (*archFlag)(nil)

// archFlag is the repeatable --arch flag. Names are checked as they are parsed
// and stored in their canonical spelling.
type archFlag struct {
	names []string
}

func (a *archFlag) String() string { return "[" + strings.Join(a.names, ",") + "]" }

// Type matches pflag's stringArray so viper reads the flag as a string slice.
func (a *archFlag) Type() string { return "stringArray" }

func (a *archFlag) Set(val string) error {
	for _, name := range strings.Split(val, ",") {
		if err := a.Append(strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	return nil
}

func (a *archFlag) Append(name string) error {
	arch, err := macho.ParseArch(name)
	if err != nil {
		return err
	}
	a.names = append(a.names, arch.String())
	return nil
}

func (a *archFlag) Replace(names []string) error {
	a.names = nil
	for _, name := range names {
		if err := a.Append(name); err != nil {
			return err
		}
	}
	return nil
}

func (a *archFlag) GetSlice() []string { return a.names }
