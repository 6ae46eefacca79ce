package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*.log", "app.log", true},
		{"*.log", "app.log.bak", false},
		{"*.log", "dir/app.log", false}, // * does not cross '/'
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"file?.txt", "file/.txt", false},
		{"a/*/c", "a/b/c", true},
		{"a/*/c", "a/b/x/c", false},
		{"[abc].txt", "b.txt", true},
		{"[abc].txt", "d.txt", false},
		{"[!abc].txt", "d.txt", true},
		{"[!abc].txt", "a.txt", false},
		{"[a-c]x", "bx", true},
		{"[]]x", "]x", true},
		{"[unterminated", "[unterminated", true},
		{`\*.txt`, "*.txt", true},
		{`\*.txt`, "a.txt", false},
		{"a.b", "axb", false},
		{"(x)+", "(x)+", true},
		{"ñame*", "ñame.txt", true},
		{"?", "ñ", true},
		{"[[:digit:]]*", "1abc", true},
		{"[[:digit:]]*", "abc", false},
		{"[![:digit:]]x", "ax", true},
		{"[![:digit:]]x", "1x", false},
		{"[a[:upper:]]", "B", true},
		{"[a[:upper:]]", "b", false},
		{"[[:alpha:][:digit:]_]", "_", true},
		{"[:alpha:]", "p", true},   // no outer brackets: a plain class of ':alph'
		{"[[:alpha]x", "[x", true}, // unclosed name: '[' and ':' are members
		{"[[:alpha]x", "bx", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.input, func(t *testing.T) {
			re, err := compileGlob(tt.pattern, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, re.MatchString(tt.input))
		})
	}
}

func TestGlobCaseFold(t *testing.T) {
	re, err := compileGlob("*.JPG", true)
	require.NoError(t, err)
	assert.True(t, re.MatchString("photo.jpg"))

	re, err = compileGlob("*.JPG", false)
	require.NoError(t, err)
	assert.False(t, re.MatchString("photo.jpg"))
}

func TestGlobInvalidClass(t *testing.T) {
	for _, pattern := range []string{"[[:digits:]]", "[[:foo:]]x", "[z-a]x"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := compileGlob(pattern, false)
			assert.Error(t, err)
		})
	}
}
