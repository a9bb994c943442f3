package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// csvTokenizer splits delimited text into rows. Unlike encoding/csv it
// accepts any quote character, an optional escape character, and can
// turn off doubled quotes.
type csvTokenizer struct {
	r           *bufio.Reader
	delimiter   rune
	quote       rune
	escape      rune
	doubleQuote bool
	line        int
}

func newCSVTokenizer(r io.Reader, delimiter, quote, escape rune, doubleQuote bool) *csvTokenizer {
	return &csvTokenizer{
		r:           bufio.NewReaderSize(r, 64*1024),
		delimiter:   delimiter,
		quote:       quote,
		escape:      escape,
		doubleQuote: doubleQuote,
		line:        1,
	}
}

// Next returns the next row, skipping blank lines. It returns io.EOF once
// the input is exhausted.
func (t *csvTokenizer) Next() ([]string, error) {
	var (
		fields  []string
		field   strings.Builder
		quoted  bool // inside a quoted section
		touched bool // the current row has content
	)
	endRow := func() []string {
		return append(fields, field.String())
	}

	for {
		r, _, err := t.r.ReadRune()
		if err == io.EOF {
			if quoted {
				return nil, fmt.Errorf("line %d: unterminated quoted field", t.line)
			}
			if !touched {
				return nil, io.EOF
			}
			return endRow(), nil
		}
		if err != nil {
			return nil, err
		}

		switch {
		case t.escape != 0 && r == t.escape:
			touched = true
			next, _, err := t.r.ReadRune()
			if err != nil {
				field.WriteRune(r)
				continue
			}
			field.WriteRune(next)

		case quoted:
			if r != t.quote {
				if r == '\n' {
					t.line++
				}
				field.WriteRune(r)
				continue
			}
			if t.doubleQuote {
				next, _, err := t.r.ReadRune()
				if err == nil && next == t.quote {
					field.WriteRune(t.quote)
					continue
				}
				if err == nil {
					_ = t.r.UnreadRune()
				}
			}
			quoted = false

		case r == t.quote && field.Len() == 0:
			touched = true
			quoted = true

		case r == t.delimiter:
			touched = true
			fields = append(fields, field.String())
			field.Reset()

		case r == '\r' || r == '\n':
			if r == '\r' {
				if next, _, err := t.r.ReadRune(); err == nil && next != '\n' {
					_ = t.r.UnreadRune()
				}
			}
			t.line++
			if !touched {
				continue
			}
			return endRow(), nil

		default:
			touched = true
			field.WriteRune(r)
		}
	}
}
