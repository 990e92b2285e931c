package basic

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Line is one decoded BASIC program line.
type Line struct {
	Number int
	Text   string
}

// Decode walks the tokenized program's linked list of lines — each
// line beginning with ⟨link:u16 BE, line-number:u16 BE⟩, then
// tokens/literals terminated by 0x00 — stopping at a zero link
// (spec.md §4.6).
func Decode(data []byte) ([]Line, error) {
	var lines []Line
	pos := 0

	for {
		if pos+4 > len(data) {
			return nil, errors.New("basic: truncated line header")
		}
		link := int(data[pos])<<8 | int(data[pos+1])
		lineNumber := int(data[pos+2])<<8 | int(data[pos+3])
		pos += 4

		if link == 0 {
			break
		}

		text, next, err := decodeLineBody(data, pos)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Number: lineNumber, Text: text})
		pos = next
	}

	return lines, nil
}

// decodeLineBody decodes one line's token/literal stream starting at
// pos, up to and including its terminating 0x00, returning the
// rendered text and the offset just past the terminator.
func decodeLineBody(data []byte, pos int) (string, int, error) {
	var sb strings.Builder
	inString := false

	for {
		if pos >= len(data) {
			return "", 0, errors.New("basic: unterminated line")
		}
		b := data[pos]

		if b == 0x00 {
			pos++
			break
		}

		if b == '"' {
			inString = !inString
			sb.WriteByte(b)
			pos++
			continue
		}

		if inString {
			sb.WriteByte(b)
			pos++
			continue
		}

		if b == 0x3A && pos+1 < len(data) && data[pos+1] == 0x83 {
			// Colon immediately followed by ELSE: the colon is
			// suppressed and only ELSE is emitted.
			sb.WriteString(oneByteTokens[0x83])
			pos += 2
			continue
		}

		if b == 0xFF {
			if pos+1 >= len(data) {
				return "", 0, errors.New("basic: truncated two-byte token")
			}
			mnemonic, ok := twoByteTokens[data[pos+1]]
			if !ok {
				return "", 0, errors.Errorf("basic: unknown two-byte token 0xFF%02X", data[pos+1])
			}
			sb.WriteString(mnemonic)
			pos += 2
			continue
		}

		if b >= 0x80 {
			mnemonic, ok := oneByteTokens[b]
			if !ok {
				return "", 0, errors.Errorf("basic: unknown token 0x%02X", b)
			}
			sb.WriteString(mnemonic)
			pos++
			continue
		}

		sb.WriteByte(b)
		pos++
	}

	return sb.String(), pos, nil
}

// Listing renders decoded lines the way LIST would print them.
func Listing(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "%d %s\n", l.Number, l.Text)
	}
	return sb.String()
}
