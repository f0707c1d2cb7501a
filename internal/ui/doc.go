// Package ui holds the colour palette, status symbols and lipgloss styles
// shared by the console channel and the run report.
//
// # Color Scheme
//
// Colors are defined as ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - hosts that succeeded
//	ColorError     (red)    - failures and errors
//	ColorWarning   (yellow) - warnings and skipped hosts
//	ColorInfo      (cyan)   - informational messages
//	ColorMuted     (gray)   - secondary text, timing info
//	ColorSecondary (blue)   - host names
//
// Colour is turned off when the output is not a terminal or NO_COLOR is set;
// see ColorEnabled.
package ui
