// Package ui styles the command line output of the harmony CLI with lipgloss.
//
// A [Palette] carries the named styles (title, success, error, warning, help). [Default] is the palette used by
// the CLI; tests and NO_COLOR terminals can use [Plain].
//
// Rendering helpers:
//  1. [Palette.Progress] : One line per pipeline progress update ("[2/5] upload_original ...")
//  2. [Palette.Result] : Summary of a harmonized pair
//  3. [Palette.Status] : ✓ / ✗ status lines for setup and admin commands
package ui
