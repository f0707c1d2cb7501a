package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorEnabled_NonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, ColorEnabled(&buf))
}

func TestColorEnabled_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(os.Stdout))
}

func TestNewStyles_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewStyles(NewRenderer(&buf))

	// ASCII profile strips escape sequences entirely.
	assert.Equal(t, "web1", s.Host.Render("web1"))
	assert.Equal(t, SymbolFail+" boom", s.Error.Render(SymbolFail+" boom"))
}

func TestSymbols_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, sym := range []string{SymbolSuccess, SymbolFail, SymbolPending, SymbolSkipped, SymbolWarning, SymbolArrow} {
		assert.False(t, seen[sym], "duplicate symbol %q", sym)
		seen[sym] = true
	}
}
