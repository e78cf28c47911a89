// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//   - forceColor == nil: keep auto-detected value
//   - forceColor == true: force colors on (--color)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

func Bold() *color.Color         { return color.New(color.Bold) }
func BoldHiBlue() *color.Color   { return color.New(color.Bold, color.FgHiBlue) }
func BoldMagenta() *color.Color  { return color.New(color.Bold, color.FgMagenta) }
func BoldHiRed() *color.Color    { return color.New(color.Bold, color.FgHiRed) }
func FaintHiBlue() *color.Color  { return color.New(color.Faint, color.FgHiBlue) }
func FaintHiWhite() *color.Color { return color.New(color.Faint, color.FgHiWhite) }
func ItalicFaint() *color.Color  { return color.New(color.Italic, color.Faint) }
