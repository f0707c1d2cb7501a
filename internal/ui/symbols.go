package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // host succeeded
	SymbolFail    = "✗" // host failed
	SymbolPending = "○" // host not yet started
	SymbolSkipped = "⊘" // host skipped after an abort
	SymbolWarning = "!"
	SymbolArrow   = "→"
)
