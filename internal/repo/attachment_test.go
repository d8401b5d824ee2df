package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNote_KeepsAllowedRunes(t *testing.T) {
	in := "Row 3, seats 1-2: arrive 18.30"
	assert.Equal(t, in, sanitizeNote(in))
}

func TestSanitizeNote_BlanksEverythingElse(t *testing.T) {
	assert.Equal(t, "hello  world ", sanitizeNote("hello;\"world\""))
	assert.Equal(t, " b ok", sanitizeNote("<b>ok"))
	assert.Equal(t, "  ", sanitizeNote("é😀"))
}

func TestSanitizeNote_PreservesWhitespace(t *testing.T) {
	in := "line one\nline\ttwo"
	assert.Equal(t, in, sanitizeNote(in))
}
