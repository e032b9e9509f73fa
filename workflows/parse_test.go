package workflows

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/okhara/stagecraft/search"
)

func TestSplitPlanLines(t *testing.T) {
	text := "- first query\n\n* second query\n  third query  \n\n"
	assert.Equal(t, []string{"first query", "second query", "third query"}, SplitPlanLines(text))

	assert.Nil(t, SplitPlanLines("\n\n  \n"))
}

func TestSelectURL(t *testing.T) {
	url, ok := SelectURL("  \"https://example.com/deep-dive\"  ")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/deep-dive", url)

	_, ok = SelectURL("I could not find a suitable link in the results.")
	assert.False(t, ok)
}

func TestParseVerdict(t *testing.T) {
	passed, critique := ParseVerdict("The plot looks valid. PASSED")
	assert.True(t, passed)
	assert.Empty(t, critique)

	passed, critique = ParseVerdict("FAILED: all inputs are zero, the simulation is trivial")
	assert.False(t, passed)
	assert.Equal(t, "all inputs are zero, the simulation is trivial", critique)
}

func TestFormatResults(t *testing.T) {
	text := FormatResults([]search.Result{
		{Title: "Go", URL: "https://go.dev", Snippet: "the language"},
	})
	assert.Contains(t, text, "Go (https://go.dev)")
	assert.Contains(t, text, "the language")

	assert.Equal(t, "No results found.", FormatResults(nil))
}

func TestPythonThirdPartyImports(t *testing.T) {
	code := `
import os, sys
import numpy as np
import matplotlib.pyplot as plt
from scipy.integrate import odeint
from collections import deque

def main():
    pass
`
	tests := `
import pytest
import temp_sandbox_script as app
`
	assert.Equal(t,
		[]string{"matplotlib", "numpy", "pytest", "scipy", "temp_sandbox_script"},
		PythonThirdPartyImports(code, tests))

	assert.Empty(t, PythonThirdPartyImports("import os\nfrom json import loads"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))

	got := clip(strings.Repeat("é", 10), 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "éé...", got)
}
