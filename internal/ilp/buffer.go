package ilp

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// DefaultInitBufferSize is the initial capacity of a Buffer when none is given.
const DefaultInitBufferSize = 64 * 1024

// rowState tracks where in a row the caller currently is.
type rowState uint8

const (
	stateEmpty    rowState = iota // no row open
	stateTableSet                 // table written, no fields yet
	stateSymbols                  // at least one symbol, no columns
	stateColumns                  // at least one column; symbols now illegal
)

func (s rowState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateTableSet:
		return "table set"
	case stateSymbols:
		return "symbols open"
	case stateColumns:
		return "columns open"
	default:
		return "unknown"
	}
}

// Buffer accumulates encoded ILP lines.
//
// Rows are built with a fixed grammar:
//
//	Table → Symbol* → Column* → At | AtNow
//
// which produces lines of the form
//
//	table,sym=v,sym=v col=v,col=v 1700000000000000000\n
//
// A call that fails validation or ordering appends nothing, so the buffer is
// byte-for-byte what it was before the call and the row in progress can be
// continued. DiscardRow drops the row in progress back to the last complete
// line. A caller that ignores an error and then calls At commits the row
// without the rejected symbol or column; call DiscardRow to drop it instead.
//
// Thread Safety: A Buffer must not be used from multiple goroutines at once.
type Buffer struct {
	buf   []byte
	state rowState
	mark  int // end offset of the last complete line
	rows  int // complete lines not yet cleared
}

// NewBuffer returns an empty Buffer with the given initial capacity.
// A non-positive size uses DefaultInitBufferSize.
func NewBuffer(initCap int) *Buffer {
	if initCap <= 0 {
		initCap = DefaultInitBufferSize
	}
	return &Buffer{buf: make([]byte, 0, initCap)}
}

// Table starts a new row. Legal only when no row is in progress.
func (b *Buffer) Table(name string) error {
	if b.state != stateEmpty {
		return apiErrorf("table %q: previous row (%s) not terminated; call At or AtNow first", name, b.state)
	}
	if err := ValidateIdentifier(kindTable, name); err != nil {
		return err
	}
	b.buf = appendEscaped(b.buf, name)
	b.state = stateTableSet
	return nil
}

// Symbol appends an indexed string field (a tag). All symbols of a row must
// come before its first column. The value must not be empty.
func (b *Buffer) Symbol(name, value string) error {
	switch b.state {
	case stateTableSet, stateSymbols:
	case stateEmpty:
		return apiErrorf("symbol %q: no table set", name)
	default:
		return apiErrorf("symbol %q: symbols must be written before any column", name)
	}
	if err := ValidateIdentifier(kindSymbol, name); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("%w: symbol %q value is empty", ErrInvalidIdentifier, name)
	}
	if err := validateValue(kindSymbol, name, value); err != nil {
		return err
	}
	b.buf = append(b.buf, ',')
	b.buf = appendEscaped(b.buf, name)
	b.buf = append(b.buf, '=')
	b.buf = appendEscaped(b.buf, value)
	b.state = stateSymbols
	return nil
}

// ColumnBool appends a boolean column, encoded as t or f.
func (b *Buffer) ColumnBool(name string, value bool) error {
	if err := b.beginColumn(name); err != nil {
		return err
	}
	if value {
		b.buf = append(b.buf, 't')
	} else {
		b.buf = append(b.buf, 'f')
	}
	return nil
}

// ColumnInt appends a 64-bit integer column, encoded as decimal digits
// followed by the i suffix.
func (b *Buffer) ColumnInt(name string, value int64) error {
	if err := b.beginColumn(name); err != nil {
		return err
	}
	b.buf = strconv.AppendInt(b.buf, value, 10)
	b.buf = append(b.buf, 'i')
	return nil
}

// ColumnFloat appends a 64-bit float column using the shortest decimal
// representation that parses back to the same value.
func (b *Buffer) ColumnFloat(name string, value float64) error {
	if err := b.beginColumn(name); err != nil {
		return err
	}
	b.buf = appendFloat(b.buf, value)
	return nil
}

// ColumnString appends a double-quoted string column.
func (b *Buffer) ColumnString(name, value string) error {
	if b.state == stateEmpty {
		return apiErrorf("column %q: no table set", name)
	}
	if err := validateValue(kindColumn, name, value); err != nil {
		return err
	}
	if err := b.beginColumn(name); err != nil {
		return err
	}
	b.buf = append(b.buf, '"')
	b.buf = appendQuoted(b.buf, value)
	b.buf = append(b.buf, '"')
	return nil
}

// beginColumn checks ordering and the column name, then writes the separator
// and "name=". Nothing is written unless both checks pass.
func (b *Buffer) beginColumn(name string) error {
	if b.state == stateEmpty {
		return apiErrorf("column %q: no table set", name)
	}
	if err := ValidateIdentifier(kindColumn, name); err != nil {
		return err
	}
	if b.state == stateColumns {
		b.buf = append(b.buf, ',')
	} else {
		b.buf = append(b.buf, ' ')
	}
	b.buf = appendEscaped(b.buf, name)
	b.buf = append(b.buf, '=')
	b.state = stateColumns
	return nil
}

// At terminates the row with an explicit timestamp in nanoseconds since the
// Unix epoch.
func (b *Buffer) At(timestampNanos int64) error {
	if err := b.checkTerminate("at"); err != nil {
		return err
	}
	b.buf = append(b.buf, ' ')
	b.buf = strconv.AppendInt(b.buf, timestampNanos, 10)
	b.endRow()
	return nil
}

// AtNow terminates the row without a timestamp so the server assigns the
// ingestion time. The line ends directly after the last field.
func (b *Buffer) AtNow() error {
	if err := b.checkTerminate("at_now"); err != nil {
		return err
	}
	b.endRow()
	return nil
}

func (b *Buffer) checkTerminate(op string) error {
	switch b.state {
	case stateSymbols, stateColumns:
		return nil
	case stateEmpty:
		return apiErrorf("%s: no table set", op)
	default:
		return apiErrorf("%s: row has no symbols or columns", op)
	}
}

func (b *Buffer) endRow() {
	b.buf = append(b.buf, '\n')
	b.mark = len(b.buf)
	b.rows++
	b.state = stateEmpty
}

// DiscardRow drops the row in progress, truncating the buffer back to the
// end of the last complete line. It is a no-op between rows.
func (b *Buffer) DiscardRow() {
	b.buf = b.buf[:b.mark]
	b.state = stateEmpty
}

// InRow reports whether a row has been started but not terminated.
func (b *Buffer) InRow() bool {
	return b.state != stateEmpty
}

// Len returns the number of buffered bytes, including any row in progress.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Rows returns the number of complete lines in the buffer.
func (b *Buffer) Rows() int {
	return b.rows
}

// Bytes returns the complete lines in the buffer. The slice aliases the
// buffer and is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.mark]
}

// Clear empties the buffer, including any row in progress, keeping its
// capacity for reuse.
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
	b.mark = 0
	b.rows = 0
	b.state = stateEmpty
}

// Drain returns a copy of all complete lines and their count, then clears the
// buffer. It fails if a row is in progress.
func (b *Buffer) Drain() ([]byte, int, error) {
	if b.InRow() {
		return nil, 0, apiErrorf("drain: row in progress")
	}
	if b.rows == 0 {
		return nil, 0, nil
	}
	out := make([]byte, b.mark)
	copy(out, b.buf[:b.mark])
	rows := b.rows
	b.Clear()
	return out, rows, nil
}

// AppendLines re-appends complete lines previously taken with Drain.
//
// Parameters:
//   - payload: One or more encoded lines, ending in a line feed
//   - rows: The number of lines in payload
//
// Returns:
//   - error: ErrInvalidAPICall if a row is in progress or payload is not a
//     whole number of lines, ErrInvalidUTF8 if payload is malformed
func (b *Buffer) AppendLines(payload []byte, rows int) error {
	if b.InRow() {
		return apiErrorf("append lines: row in progress")
	}
	if len(payload) == 0 {
		return nil
	}
	if rows <= 0 {
		return apiErrorf("append lines: row count %d must be positive", rows)
	}
	if payload[len(payload)-1] != '\n' {
		return apiErrorf("append lines: payload does not end with a line feed")
	}
	if !utf8.Valid(payload) {
		return ErrInvalidUTF8
	}
	b.buf = append(b.buf, payload...)
	b.mark = len(b.buf)
	b.rows += rows
	return nil
}

// needsEscape reports whether c must be backslash-escaped in names and
// symbol values.
func needsEscape(c byte) bool {
	return c == ' ' || c == ',' || c == '=' || c == '\\'
}

// appendEscaped appends s, prefixing spaces, commas, equals signs and
// backslashes with a backslash.
func appendEscaped(dst []byte, s string) []byte {
	start := 0
	for i := 0; i < len(s); i++ {
		if needsEscape(s[i]) {
			dst = append(dst, s[start:i]...)
			dst = append(dst, '\\', s[i])
			start = i + 1
		}
	}
	return append(dst, s[start:]...)
}

// appendQuoted appends the body of a string column, escaping double quotes
// and backslashes.
func appendQuoted(dst []byte, s string) []byte {
	start := 0
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '"' || c == '\\' {
			dst = append(dst, s[start:i]...)
			dst = append(dst, '\\', c)
			start = i + 1
		}
	}
	return append(dst, s[start:]...)
}

func appendFloat(dst []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(dst, "NaN"...)
	case math.IsInf(v, 1):
		return append(dst, "Infinity"...)
	case math.IsInf(v, -1):
		return append(dst, "-Infinity"...)
	}
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}
