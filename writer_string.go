package jsongraph

import (
	"bytes"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

var (
	needsEscape [utf8.RuneSelf]bool
	htmlEscape  [utf8.RuneSelf]bool
)

func init() {
	for i := 0; i < 0x20; i++ {
		needsEscape[i] = true
	}
	needsEscape['"'] = true
	needsEscape['\\'] = true
	htmlEscape['<'] = true
	htmlEscape['>'] = true
	htmlEscape['&'] = true
}

// writeString writes s as a quoted JSON string
func writeString(buf *bytes.Buffer, s string, escapeHTML, escapeNonASCII bool) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if !needsEscape[c] && !(escapeHTML && htmlEscape[c]) {
				i++
				continue
			}
			buf.WriteString(s[start:i])
			switch c {
			case '"', '\\':
				buf.WriteByte('\\')
				buf.WriteByte(c)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			default:
				writeUnicodeEscape(buf, rune(c))
			}
			i++
			start = i
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			buf.WriteString(s[start:i])
			buf.WriteString(`\ufffd`)
		case r == '\u2028' || r == '\u2029' || escapeNonASCII:
			buf.WriteString(s[start:i])
			if r > 0xFFFF {
				r -= 0x10000
				writeUnicodeEscape(buf, 0xD800+(r>>10))
				writeUnicodeEscape(buf, 0xDC00+(r&0x3FF))
			} else {
				writeUnicodeEscape(buf, r)
			}
		default:
			i += size
			continue
		}
		i += size
		start = i
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[r>>12&0xF])
	buf.WriteByte(hexDigits[r>>8&0xF])
	buf.WriteByte(hexDigits[r>>4&0xF])
	buf.WriteByte(hexDigits[r&0xF])
}
