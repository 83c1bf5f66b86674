package ilp

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Identifier kinds used in validation error messages.
const (
	kindTable  = "table"
	kindSymbol = "symbol"
	kindColumn = "column"
)

// ValidateUTF8 reports whether s is well-formed UTF-8.
//
// Returns:
//   - error: nil if valid, otherwise wraps ErrInvalidUTF8 with the offset
//     of the first bad byte
func ValidateUTF8(s string) error {
	if utf8.ValidString(s) {
		return nil
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return fmt.Errorf("%w: bad byte 0x%02x at offset %d", ErrInvalidUTF8, s[i], i)
		}
		i += size
	}
	return ErrInvalidUTF8
}

// ValidateIdentifier checks a table, symbol or column name.
//
// A legal name is non-empty UTF-8, has no leading or trailing whitespace, and
// contains no line feed, carriage return or double quote. Space, comma,
// equals and backslash are legal; they are escaped on the wire.
//
// Parameters:
//   - kind: "table", "symbol" or "column", used in the error message
//   - name: The name to check
//
// Returns:
//   - error: nil if legal, otherwise wraps ErrInvalidUTF8 or ErrInvalidIdentifier
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s name is empty", ErrInvalidIdentifier, kind)
	}
	if err := ValidateUTF8(name); err != nil {
		return fmt.Errorf("%s name: %w", kind, err)
	}
	if i := strings.IndexAny(name, "\n\r\""); i >= 0 {
		return fmt.Errorf("%w: %s name %q has illegal character %q at offset %d",
			ErrInvalidIdentifier, kind, name, name[i], i)
	}
	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return fmt.Errorf("%w: %s name %q has leading or trailing whitespace",
			ErrInvalidIdentifier, kind, name)
	}
	return nil
}

// validateValue checks a symbol or string column value. Values may contain
// spaces, but never raw line breaks. Emptiness is checked by the caller.
func validateValue(kind, name, value string) error {
	if err := ValidateUTF8(value); err != nil {
		return fmt.Errorf("%s %q value: %w", kind, name, err)
	}
	if i := strings.IndexAny(value, "\n\r"); i >= 0 {
		return fmt.Errorf("%w: %s %q value has a line break at offset %d",
			ErrInvalidIdentifier, kind, name, i)
	}
	return nil
}
