package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Command completed successfully
	SymbolFail     = "✗" // Command failed
	SymbolPending  = "○" // Not yet started
	SymbolProgress = "◐" // In progress
	SymbolSkipped  = "⊘" // Skipped (duplicate detected)
	SymbolWarn     = "!" // Warning, proceed with caution
)
