package filter

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"unicode/utf8"
)

// CaseInsensitive is the platform default for glob matching. Windows paths
// compare without case.
var CaseInsensitive = runtime.GOOS == "windows"

// compileGlob converts an fnmatch-style glob into an anchored regex.
// "*" and "?" never match "/", "[...]" and "[!...]" are character classes
// that may hold POSIX classes such as "[:digit:]", and "\" escapes the next
// character.
func compileGlob(pattern string, fold bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if fold {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	if err := globToRegex(&b, pattern); err != nil {
		return nil, err
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// posixClasses are the class names accepted inside brackets. RE2 knows the
// same set.
var posixClasses = map[string]bool{
	"alnum": true, "alpha": true, "blank": true, "cntrl": true,
	"digit": true, "graph": true, "lower": true, "print": true,
	"punct": true, "space": true, "upper": true, "xdigit": true,
}

func globToRegex(b *strings.Builder, pattern string) error {
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(pattern[i+1 : i+2]))
				i += 2
			} else {
				b.WriteString(`\\`)
				i++
			}
		case '[':
			class, end, err := bracketClass(pattern, i)
			if err != nil {
				return err
			}
			if end < 0 {
				// Unterminated class, match '[' literally.
				b.WriteString(`\[`)
				i++
				continue
			}
			b.WriteString(class)
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
			i++
		}
	}
	return nil
}

// bracketClass translates the class opening at pattern[i]. It returns the
// regex class and the index just past the closing ']', or end -1 when the
// class is not terminated.
func bracketClass(pattern string, i int) (class string, end int, err error) {
	j := i + 1
	var b strings.Builder
	b.WriteByte('[')
	if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
		b.WriteString("^/")
		j++
	}

	// A leading ']' is part of the class.
	first := true
	for j < len(pattern) {
		c := pattern[j]
		switch {
		case c == ']' && !first:
			b.WriteByte(']')
			return b.String(), j + 1, nil
		case c == '[' && j+1 < len(pattern) && pattern[j+1] == ':':
			k := strings.Index(pattern[j+2:], ":]")
			if k < 0 {
				b.WriteString(`\[`)
				j++
				break
			}
			name := pattern[j+2 : j+2+k]
			if !posixClasses[name] {
				return "", 0, fmt.Errorf("%w: unknown character class [:%s:] in %q", ErrInvalidPattern, name, pattern)
			}
			b.WriteString("[:" + name + ":]")
			j += k + 4
		case c == '-':
			b.WriteByte('-')
			j++
		default:
			_, size := utf8.DecodeRuneInString(pattern[j:])
			b.WriteString(regexp.QuoteMeta(pattern[j : j+size]))
			j += size
		}
		first = false
	}
	return "", -1, nil
}
