package jsongraph

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/cybergodev/jsongraph/internal"
)

// LexString decodes a complete quoted JSON string literal
func LexString(text string) (string, error) {
	if len(text) == 0 || text[0] != '"' {
		return "", newSyntaxError(text, 0, "string must start with a quote", ErrUnexpectedCharacter)
	}
	s, end, err := lexString(text, 1)
	if err != nil {
		return "", err
	}
	if end != len(text) {
		return "", newSyntaxError(text, end, "trailing characters after string", ErrUnexpectedCharacter)
	}
	return s, nil
}

// lexString decodes the literal whose content starts at pos, just after the
// opening quote, and returns the offset after the closing quote. Literals
// without escapes are returned as a substring of data.
func lexString(data string, pos int) (string, int, error) {
	for i := pos; i < len(data); i++ {
		switch data[i] {
		case '"':
			return data[pos:i], i + 1, nil
		case '\\':
			return lexEscapedString(data, pos, i)
		default:
			if data[i] < 0x20 {
				return "", i, controlCharError(data, i)
			}
		}
	}
	return "", len(data), newSyntaxError(data, pos-1, "string is never closed", ErrInvalidStringTermination)
}

// lexEscapedString continues decoding from the first backslash at i
func lexEscapedString(data string, start, i int) (string, int, error) {
	buf := internal.GetBuffer(i - start + 16)
	defer internal.PutBuffer(buf)
	buf.WriteString(data[start:i])

	for i < len(data) {
		switch data[i] {
		case '"':
			return buf.String(), i + 1, nil
		case '\\':
			i++
			if i >= len(data) {
				return "", len(data), newSyntaxError(data, start-1, "string is never closed", ErrInvalidStringTermination)
			}
			switch c := data[i]; c {
			case '"', '\\', '/':
				buf.WriteByte(c)
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'u':
				r, next, err := lexUnicodeEscape(data, i+1)
				if err != nil {
					return "", next, err
				}
				buf.WriteRune(r)
				i = next
				continue
			default:
				return "", i, newSyntaxError(data, i, "invalid escape character '"+string(rune(c))+"'", ErrInvalidEscape)
			}
			i++
		default:
			j := i
			for j < len(data) && data[j] != '"' && data[j] != '\\' {
				if data[j] < 0x20 {
					return "", j, controlCharError(data, j)
				}
				j++
			}
			buf.WriteString(data[i:j])
			i = j
		}
	}
	return "", len(data), newSyntaxError(data, start-1, "string is never closed", ErrInvalidStringTermination)
}

func controlCharError(data string, i int) error {
	return newSyntaxError(data, i, fmt.Sprintf("control character 0x%02x in string", data[i]), ErrUnexpectedCharacter)
}

// lexUnicodeEscape reads the four hex digits at pos. A high surrogate
// followed by an escaped low surrogate yields one rune; an unpaired
// surrogate yields U+FFFD.
func lexUnicodeEscape(data string, pos int) (rune, int, error) {
	r, ok := hex4(data, pos)
	if !ok {
		return 0, pos, newSyntaxError(data, pos, "invalid unicode escape", ErrInvalidUnicodeEscape)
	}
	pos += 4
	if !utf16.IsSurrogate(r) {
		return r, pos, nil
	}
	if r < 0xDC00 && hasPrefixAt(data, pos, `\u`) {
		if lo, ok := hex4(data, pos+2); ok && lo >= 0xDC00 && lo <= 0xDFFF {
			return utf16.DecodeRune(r, lo), pos + 6, nil
		}
	}
	return utf8.RuneError, pos, nil
}

func hex4(data string, pos int) (rune, bool) {
	if len(data)-pos < 4 {
		return 0, false
	}
	var r rune
	for _, c := range []byte(data[pos : pos+4]) {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, false
		}
		r = r<<4 | rune(d)
	}
	return r, true
}
