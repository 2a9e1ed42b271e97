package jsongraph

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/josharian/intern"
)

// parseState is the cursor of one deserialization call
type parseState struct {
	data     string
	pos      int
	depth    int
	limit    int
	settings *Settings
	refs     readRefs
	names    *TypeNameTable
}

func newParseState(data string, s *Settings) *parseState {
	return &parseState{
		data:     data,
		settings: s,
		limit:    s.depthLimit(),
		names:    s.TypeTable.Clone(),
	}
}

func (p *parseState) release() {
	p.refs.release()
	p.names = nil
}

func (p *parseState) fail(err error, format string, args ...any) error {
	return newSyntaxError(p.data, p.pos, fmt.Sprintf(format, args...), err)
}

func (p *parseState) failAt(offset int, err error, format string, args ...any) error {
	return newSyntaxError(p.data, offset, fmt.Sprintf(format, args...), err)
}

// locate attaches an input position to errors raised away from the text
func (p *parseState) locate(err error, offset int) error {
	var ce *CodecError
	if errors.As(err, &ce) && ce.Offset < 0 {
		located := *ce
		located.Op = "deserialize"
		located.Offset = offset
		located.Line, located.Column = position(p.data, offset)
		return &located
	}
	return err
}

func (p *parseState) skipSpace() error {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		case '/':
			if err := p.skipComment(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// skipComment consumes one // or /* */ comment. An unterminated block
// comment is an error whatever the comment policy.
func (p *parseState) skipComment() error {
	start := p.pos
	if p.pos+1 >= len(p.data) {
		return p.fail(ErrInvalidComment, "incomplete comment")
	}
	switch p.data[p.pos+1] {
	case '/':
		if end := strings.IndexByte(p.data[p.pos+2:], '\n'); end < 0 {
			p.pos = len(p.data)
		} else {
			p.pos += 2 + end + 1
		}
	case '*':
		end := strings.Index(p.data[p.pos+2:], "*/")
		if end < 0 {
			return p.fail(ErrInvalidComment, "comment is never closed")
		}
		p.pos += 2 + end + 2
	default:
		return p.fail(ErrUnexpectedCharacter, "unexpected character '/'")
	}
	if p.settings.Comments == CommentsError {
		return p.failAt(start, ErrInvalidComment, "comments are not allowed")
	}
	return nil
}

// peek skips whitespace and returns the next byte without consuming it
func (p *parseState) peek() (byte, error) {
	if err := p.skipSpace(); err != nil {
		return 0, err
	}
	if p.pos >= len(p.data) {
		return 0, p.fail(ErrUnexpectedEnd, "unexpected end of input")
	}
	return p.data[p.pos], nil
}

// finish rejects anything but whitespace after the top-level value
func (p *parseState) finish() error {
	if err := p.skipSpace(); err != nil {
		return err
	}
	if p.pos < len(p.data) {
		return p.fail(ErrUnexpectedCharacter, "unexpected %q after top-level value", p.data[p.pos])
	}
	return nil
}

func (p *parseState) enter() error {
	p.depth++
	if p.limit > 0 && p.depth > p.limit {
		err := newDepthLimitError("deserialize", p.depth, p.limit)
		err.Offset = p.pos
		err.Line, err.Column = position(p.data, p.pos)
		return err
	}
	return nil
}

func (p *parseState) leave() {
	p.depth--
}

func (p *parseState) literal(word string) error {
	if !hasPrefixAt(p.data, p.pos, word) {
		return p.fail(ErrUnexpectedCharacter, "invalid literal, expected %s", word)
	}
	p.pos += len(word)
	return nil
}

func (p *parseState) parseStringToken() (string, error) {
	s, end, err := lexString(p.data, p.pos+1)
	p.pos = end
	return s, err
}

func (p *parseState) parseNumberToken() (NumberLiteral, error) {
	lit, end, err := lexNumber(p.data, p.pos)
	p.pos = end
	return lit, err
}

func isNumberStart(c byte) bool {
	return c == '-' || c == '.' || c == 'N' || c == 'I' || (c >= '0' && c <= '9')
}

// parseDateCtor reads new Date(ms)
func (p *parseState) parseDateCtor() (time.Time, error) {
	p.pos += len(dateCtor)
	if _, err := p.peek(); err != nil {
		return time.Time{}, err
	}
	start := p.pos
	lit, err := p.parseNumberToken()
	if err != nil {
		return time.Time{}, err
	}
	ms, convErr := strconv.ParseInt(lit.Text, 10, 64)
	if convErr != nil {
		return time.Time{}, p.failAt(start, ErrInvalidNumber, "date milliseconds must be an integer")
	}
	c, err := p.peek()
	if err != nil {
		return time.Time{}, err
	}
	if c != ')' {
		return time.Time{}, p.fail(ErrUnexpectedCharacter, "expected ')' to close new Date")
	}
	p.pos++
	return applyZone(time.UnixMilli(ms).UTC(), p.settings.DateZone), nil
}

func (p *parseState) parseKey() (string, error) {
	c, err := p.peek()
	if err != nil {
		return "", err
	}
	if c != '"' {
		return "", p.fail(ErrUnexpectedCharacter, "expected member name, found %q", c)
	}
	key, err := p.parseStringToken()
	if err != nil {
		return "", err
	}
	if c, err = p.peek(); err != nil {
		return "", err
	}
	if c != ':' {
		return "", p.fail(ErrUnexpectedCharacter, "expected ':' after member name")
	}
	p.pos++
	return key, nil
}

// delimiter consumes ',' or the closing byte and reports whether more follow
func (p *parseState) delimiter(closing byte) (bool, error) {
	c, err := p.peek()
	if err != nil {
		return false, err
	}
	switch c {
	case ',':
		p.pos++
		return true, nil
	case closing:
		p.pos++
		return false, nil
	}
	return false, p.fail(ErrUnexpectedCharacter, "expected ',' or '%c', found %q", closing, c)
}

// elements iterates the values of an array whose '[' was consumed
func (p *parseState) elements(each func(i int) error) error {
	c, err := p.peek()
	if err != nil {
		return err
	}
	if c == ']' {
		p.pos++
		return nil
	}
	for i := 0; ; i++ {
		if err := each(i); err != nil {
			return err
		}
		more, err := p.delimiter(']')
		if err != nil || !more {
			return err
		}
	}
}

// objectHeader holds the reserved members leading an object
type objectHeader struct {
	id      int
	hasID   bool
	ref     int
	hasRef  bool
	typ     reflect.Type
	hasType bool
	values  bool // the $values value is next

	pending    string // first ordinary key, already consumed
	hasPending bool
	closed     bool // the object ended inside the header
}

// parseHeader reads reserved members after '{' up to the first ordinary one
func (p *parseState) parseHeader() (objectHeader, error) {
	var h objectHeader
	c, err := p.peek()
	if err != nil {
		return h, err
	}
	if c == '}' {
		p.pos++
		h.closed = true
		return h, nil
	}

	for {
		keyStart := p.pos
		key, err := p.parseKey()
		if err != nil {
			return h, err
		}
		switch key {
		case RefKey:
			if h.hasID || h.hasType {
				return h, p.failAt(keyStart, ErrInvalidJSON, "%s must be the only member", RefKey)
			}
			if h.ref, err = p.parseRefID(); err != nil {
				return h, err
			}
			h.hasRef = true
			more, err := p.delimiter('}')
			if err != nil {
				return h, err
			}
			if more {
				return h, p.failAt(keyStart, ErrInvalidJSON, "%s must be the only member", RefKey)
			}
			h.closed = true
			return h, nil

		case IDKey:
			if h.hasID {
				return h, p.failAt(keyStart, ErrInvalidJSON, "%s appears twice", IDKey)
			}
			if h.id, err = p.parseRefID(); err != nil {
				return h, err
			}
			h.hasID = true

		case TypeKey:
			if h.hasType {
				return h, p.failAt(keyStart, ErrInvalidJSON, "%s appears twice", TypeKey)
			}
			h.hasType = true
			if !p.settings.readsTypeHints() {
				// $type is ignored unless type names are enabled
				if err := p.skipValue(); err != nil {
					return h, err
				}
				break
			}
			if h.typ, err = p.parseTypeHint(); err != nil {
				return h, err
			}

		case ValuesKey:
			h.values = true
			return h, nil

		default:
			h.pending, h.hasPending = key, true
			return h, nil
		}

		more, err := p.delimiter('}')
		if err != nil {
			return h, err
		}
		if !more {
			h.closed = true
			return h, nil
		}
	}
}

// members iterates the ordinary members after the header. each is called
// with the value as the next token and must consume it.
func (p *parseState) members(h *objectHeader, each func(key string) error) error {
	if h.closed {
		return nil
	}
	key, pending := h.pending, h.hasPending
	for {
		if !pending {
			k, err := p.parseKey()
			if err != nil {
				return err
			}
			key = k
		}
		pending = false
		if err := each(key); err != nil {
			return err
		}
		more, err := p.delimiter('}')
		if err != nil || !more {
			return err
		}
	}
}

// closeValues ends an object after its $values member
func (p *parseState) closeValues() error {
	more, err := p.delimiter('}')
	if err != nil {
		return err
	}
	if more {
		return p.fail(ErrInvalidJSON, "%s must be the last member", ValuesKey)
	}
	return nil
}

func (p *parseState) parseRefID() (int, error) {
	c, err := p.peek()
	if err != nil {
		return 0, err
	}
	start := p.pos
	var raw any
	switch {
	case c == '"':
		raw, err = p.parseStringToken()
	case c >= '0' && c <= '9':
		var lit NumberLiteral
		if lit, err = p.parseNumberToken(); err == nil && lit.IsInteger() {
			raw, err = lit.Value(FloatParseFloat64)
		}
	default:
		return 0, p.fail(ErrUnexpectedCharacter, "reference id must be a number or string")
	}
	if err != nil {
		return 0, err
	}
	id, ok := parseRefID(raw)
	if !ok {
		return 0, p.failAt(start, ErrInvalidJSON, "invalid reference id")
	}
	return id, nil
}

func (p *parseState) parseTypeHint() (reflect.Type, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	start := p.pos
	switch {
	case c == '"':
		name, err := p.parseStringToken()
		if err != nil {
			return nil, err
		}
		t, err := typeForName(p.settings, name)
		if err != nil {
			return nil, p.locate(err, start)
		}
		p.names.Add(name, t)
		return t, nil

	case c >= '0' && c <= '9':
		lit, err := p.parseNumberToken()
		if err != nil {
			return nil, err
		}
		idx, convErr := strconv.Atoi(lit.Text)
		if convErr != nil {
			return nil, p.failAt(start, ErrInvalidNumber, "type index must be an integer")
		}
		_, t, ok := p.names.At(idx)
		if !ok {
			return nil, p.failAt(start, ErrUnknownType, "type index %d is not in the table", idx)
		}
		return t, nil
	}
	return nil, p.fail(ErrUnexpectedCharacter, "type hint must be a name or a table index")
}

// skipValue consumes one value, validating it without building anything
func (p *parseState) skipValue() error {
	c, err := p.peek()
	if err != nil {
		return err
	}
	switch {
	case c == '{':
		return p.skipObject()
	case c == '[':
		if err := p.enter(); err != nil {
			return err
		}
		defer p.leave()
		p.pos++
		return p.elements(func(int) error { return p.skipValue() })
	case c == '"':
		_, err := p.parseStringToken()
		return err
	case c == 't':
		return p.literal(trueLiteral)
	case c == 'f':
		return p.literal(falseLiteral)
	case c == 'n':
		if hasPrefixAt(p.data, p.pos, dateCtor) {
			_, err := p.parseDateCtor()
			return err
		}
		return p.literal(nullLiteral)
	case isNumberStart(c):
		_, err := p.parseNumberToken()
		return err
	}
	return p.fail(ErrUnexpectedCharacter, "unexpected character %q", c)
}

func (p *parseState) skipObject() error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()
	p.pos++
	c, err := p.peek()
	if err != nil {
		return err
	}
	if c == '}' {
		p.pos++
		return nil
	}
	for {
		if _, err := p.parseKey(); err != nil {
			return err
		}
		if err := p.skipValue(); err != nil {
			return err
		}
		more, err := p.delimiter('}')
		if err != nil || !more {
			return err
		}
	}
}

// parseAny decodes the next value without a target type
func (p *parseState) parseAny() (any, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case c == '{':
		return p.objectAny()
	case c == '[':
		return p.arrayAny()
	case c == '"':
		s, err := p.parseStringToken()
		if err != nil {
			return nil, err
		}
		if p.settings.DetectDates {
			if t, ok := detectDate(s, p.settings); ok {
				return t, nil
			}
		}
		return s, nil
	case c == 't':
		return true, p.literal(trueLiteral)
	case c == 'f':
		return false, p.literal(falseLiteral)
	case c == 'n':
		if hasPrefixAt(p.data, p.pos, dateCtor) {
			return p.parseDateCtor()
		}
		return nil, p.literal(nullLiteral)
	case isNumberStart(c):
		start := p.pos
		lit, err := p.parseNumberToken()
		if err != nil {
			return nil, err
		}
		v, err := lit.Value(p.settings.FloatParse)
		if err != nil {
			return nil, p.locate(err, start)
		}
		return v, nil
	}
	return nil, p.fail(ErrUnexpectedCharacter, "unexpected character %q", c)
}

func (p *parseState) objectAny() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	p.pos++

	h, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	return p.objectFromHeader(&h)
}

// objectFromHeader builds a generic object, or the hinted type, once the
// header has been read.
func (p *parseState) objectFromHeader(h *objectHeader) (any, error) {
	switch {
	case h.hasRef:
		v, err := p.refs.resolve(h.ref)
		if err != nil {
			return nil, p.locate(err, p.pos)
		}
		return v.Interface(), nil
	case h.typ != nil:
		v, err := p.newObject(h.typ, h, p.pos)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	case h.values:
		v, err := p.parseAny()
		if err != nil {
			return nil, err
		}
		return v, p.closeValues()
	}

	if p.settings.MapKind == MapOrdered {
		m := NewOrderedMap()
		if err := p.registerID(h, reflect.ValueOf(m)); err != nil {
			return nil, err
		}
		err := p.members(h, func(key string) error {
			v, err := p.parseAny()
			if err != nil {
				return err
			}
			m.Set(intern.String(key), v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	m := make(map[string]any)
	if err := p.registerID(h, reflect.ValueOf(m)); err != nil {
		return nil, err
	}
	err := p.members(h, func(key string) error {
		v, err := p.parseAny()
		if err != nil {
			return err
		}
		m[intern.String(key)] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (p *parseState) arrayAny() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	p.pos++

	items := make([]any, 0, 4)
	err := p.elements(func(int) error {
		v, err := p.parseAny()
		if err != nil {
			return err
		}
		items = append(items, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.settings.ArrayKind == ArrayTyped {
		return typedSlice(items), nil
	}
	return items, nil
}

// typedSlice converts items to []T when every element has dynamic type T
func typedSlice(items []any) any {
	if len(items) == 0 {
		return items
	}
	var t reflect.Type
	for _, it := range items {
		if it == nil {
			return items
		}
		switch tt := reflect.TypeOf(it); {
		case t == nil:
			t = tt
		case tt != t:
			return items
		}
	}
	s := reflect.MakeSlice(reflect.SliceOf(t), len(items), len(items))
	for i, it := range items {
		s.Index(i).Set(reflect.ValueOf(it))
	}
	return s.Interface()
}

func (p *parseState) registerID(h *objectHeader, v reflect.Value) error {
	if !h.hasID {
		return nil
	}
	if err := p.refs.register(h.id, v); err != nil {
		return p.locate(err, p.pos)
	}
	return nil
}
