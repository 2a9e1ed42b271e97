package jsongraph

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/tagparser/v2"
	"golang.org/x/text/cases"

	"github.com/cybergodev/jsongraph/internal"
)

// Member describes one serializable member of a struct type
type Member struct {
	Name       string   // name written to JSON
	Aliases    []string // extra names accepted when reading
	FieldName  string
	Index      []int
	Type       reflect.Type
	Depth      int // embedding depth, 0 for direct fields
	CanRead    bool
	CanWrite   bool
	OmitEmpty  bool
	Required   bool
	Quoted     bool // scalar written inside a JSON string
	HasDefault bool
	Default    reflect.Value

	get   func(owner reflect.Value) (reflect.Value, bool)
	field func(owner reflect.Value) reflect.Value
}

// Get returns the member value of owner. It reports false when an embedded
// pointer on the way to the field is nil.
func (m *Member) Get(owner reflect.Value) (reflect.Value, bool) {
	return m.get(owner)
}

// Set assigns value to the member of an addressable owner, allocating nil
// embedded pointers on the way.
func (m *Member) Set(owner, value reflect.Value) {
	m.field(owner).Set(value)
}

// IsDefault reports whether v equals the member's default value
func (m *Member) IsDefault(v reflect.Value) bool {
	if m.HasDefault {
		return reflect.DeepEqual(v.Interface(), m.Default.Interface())
	}
	return v.IsZero()
}

// TypeInfo is the cached member table of one struct type
type TypeInfo struct {
	Type      reflect.Type
	Members   []*Member // declaration order
	Sorted    []*Member // by name
	Conflicts []string
	Dynamic   bool // *T implements DynamicObject

	trackMissing bool // some member is required or has a default

	byName  map[string]*Member
	byAlias map[string]*Member
	byFold  map[string]*Member
}

// Lookup finds the member for a JSON name: exact names, then aliases, then
// case-folded names unless caseSensitive is set.
func (ti *TypeInfo) Lookup(name string, caseSensitive bool) *Member {
	if m, ok := ti.byName[name]; ok {
		return m
	}
	if m, ok := ti.byAlias[name]; ok {
		return m
	}
	if caseSensitive {
		return nil
	}
	return ti.byFold[foldName(name)]
}

var (
	typeInfos   internal.TypeCache[*TypeInfo]
	foldCache   = internal.NewShardedLRU[string](DefaultFoldCacheSize)
	dynamicType = reflect.TypeOf((*DynamicObject)(nil)).Elem()
	timeType    = reflect.TypeOf((*time.Time)(nil)).Elem()
)

// Describe returns the member table of a struct type or pointer to one
func Describe(t reflect.Type) (*TypeInfo, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, newTypeError("introspect", t, "only struct types have members", ErrUnsupportedType)
	}
	return typeInfoFor(t), nil
}

func typeInfoFor(t reflect.Type) *TypeInfo {
	return typeInfos.Load(t, buildTypeInfo)
}

// foldName applies Unicode full case folding, so "Straße" and "STRASSE"
// compare equal.
func foldName(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return strings.ToLower(s)
	}
	if f, ok := foldCache.Get(s); ok {
		return f
	}
	f := cases.Fold().String(s)
	foldCache.Add(s, f)
	return f
}

func buildTypeInfo(t reflect.Type) *TypeInfo {
	var candidates []*Member
	collectFields(t, nil, 0, map[reflect.Type]bool{t: true}, &candidates)

	// The shallowest field wins, then the first declared.
	byName := make(map[string][]*Member)
	for _, m := range candidates {
		byName[m.Name] = append(byName[m.Name], m)
	}

	info := &TypeInfo{
		Type:    t,
		Dynamic: reflect.PointerTo(t).Implements(dynamicType),
		byName:  make(map[string]*Member, len(byName)),
		byAlias: make(map[string]*Member),
		byFold:  make(map[string]*Member, len(byName)),
	}
	winners := make(map[*Member]bool, len(byName))
	for name, group := range byName {
		best := group[0]
		for _, m := range group[1:] {
			if m.Depth < best.Depth {
				best = m
			}
		}
		for _, m := range group {
			if m != best && m.Depth == best.Depth {
				info.Conflicts = append(info.Conflicts,
					fmt.Sprintf("%s: fields %s and %s", name, best.FieldName, m.FieldName))
			}
		}
		winners[best] = true
	}

	for _, m := range candidates {
		if winners[m] {
			info.Members = append(info.Members, m)
		}
	}
	for _, m := range info.Members {
		info.byName[m.Name] = m
		if m.Required || m.HasDefault {
			info.trackMissing = true
		}
	}
	for _, m := range info.Members {
		for _, alias := range m.Aliases {
			// the first claimant keeps an alias
			if owner, taken := info.byName[alias]; taken {
				if owner != m {
					info.Conflicts = append(info.Conflicts,
						fmt.Sprintf("%s: field %s and alias of %s", alias, owner.FieldName, m.FieldName))
				}
				continue
			}
			if owner, taken := info.byAlias[alias]; taken {
				if owner != m {
					info.Conflicts = append(info.Conflicts,
						fmt.Sprintf("%s: aliases of %s and %s", alias, owner.FieldName, m.FieldName))
				}
				continue
			}
			info.byAlias[alias] = m
		}
		if folded := foldName(m.Name); info.byFold[folded] == nil {
			info.byFold[folded] = m
		}
	}

	info.Sorted = append([]*Member(nil), info.Members...)
	sort.Slice(info.Sorted, func(i, j int) bool { return info.Sorted[i].Name < info.Sorted[j].Name })

	sort.Strings(info.Conflicts)
	if len(info.Conflicts) > 0 {
		packageLogger().Warn("ambiguous member names",
			slog.String("type", t.String()),
			slog.Any("conflicts", info.Conflicts))
	}
	return info
}

// collectFields walks t depth-first, inlining embedded structs
func collectFields(t reflect.Type, prefix []int, depth int, visiting map[reflect.Type]bool, out *[]*Member) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		rawTag, hasTag := f.Tag.Lookup("json")
		if rawTag == "-" {
			continue
		}
		tag := tagparser.Parse(rawTag)

		index := make([]int, len(prefix)+1)
		copy(index, prefix)
		index[len(prefix)] = i

		if f.Anonymous && tag.Name == "" {
			ft := f.Type
			isPtr := ft.Kind() == reflect.Pointer
			if isPtr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != timeType {
				if (isPtr && !f.IsExported()) || visiting[ft] {
					continue
				}
				visiting[ft] = true
				collectFields(ft, index, depth+1, visiting, out)
				delete(visiting, ft)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}

		m := &Member{
			Name:      f.Name,
			FieldName: f.Name,
			Index:     index,
			Type:      f.Type,
			Depth:     depth,
			CanRead:   !tag.HasOption("writeonly"),
			CanWrite:  !tag.HasOption("readonly"),
			OmitEmpty: tag.HasOption("omitempty"),
			Required:  tag.HasOption("required"),
			Quoted:    tag.HasOption("string") && isQuotableKind(f.Type.Kind()),
			get:       compileGetter(index),
			field:     compileField(index),
		}
		if hasTag && tag.Name != "" {
			m.Name = tag.Name
		}
		if alias, ok := tag.Options["alias"]; ok && alias != "" {
			m.Aliases = append(m.Aliases, alias)
		}
		if def, ok := tag.Options["default"]; ok {
			if v, err := parseDefault(def, f.Type); err == nil {
				m.Default, m.HasDefault = v, true
			} else {
				packageLogger().Warn("ignoring member default",
					slog.String("type", t.String()),
					slog.String("member", f.Name),
					slog.String("error", err.Error()))
			}
		}
		*out = append(*out, m)
	}
}

func compileGetter(index []int) func(reflect.Value) (reflect.Value, bool) {
	if len(index) == 1 {
		i := index[0]
		return func(v reflect.Value) (reflect.Value, bool) {
			return v.Field(i), true
		}
	}
	return func(v reflect.Value) (reflect.Value, bool) {
		for n, i := range index {
			if n > 0 && v.Kind() == reflect.Pointer {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				v = v.Elem()
			}
			v = v.Field(i)
		}
		return v, true
	}
}

func compileField(index []int) func(reflect.Value) reflect.Value {
	if len(index) == 1 {
		i := index[0]
		return func(v reflect.Value) reflect.Value {
			return v.Field(i)
		}
	}
	return func(v reflect.Value) reflect.Value {
		for n, i := range index {
			if n > 0 && v.Kind() == reflect.Pointer {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
			v = v.Field(i)
		}
		return v
	}
}

func isQuotableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// parseDefault converts the text of a default: tag option to a value of t
func parseDefault(text string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	if t == timeType {
		tm, err := parseDate(text, DefaultSettings())
		if err != nil {
			return v, err
		}
		v.Set(reflect.ValueOf(tm))
		return v, nil
	}

	switch t.Kind() {
	case reflect.String:
		if strings.HasPrefix(text, `"`) {
			s, err := LexString(text)
			if err != nil {
				return v, err
			}
			text = s
		}
		v.SetString(text)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, t.Bits())
		if err != nil {
			return v, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(text, 10, t.Bits())
		if err != nil {
			return v, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		lit, err := LexNumber(text)
		if err != nil {
			return v, err
		}
		f, err := lit.Float64()
		if err != nil {
			return v, err
		}
		v.SetFloat(f)
	default:
		return v, fmt.Errorf("defaults are not supported for %s", t)
	}
	return v, nil
}
