package jsongraph

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"

	"github.com/imdario/mergo"
)

// DateFormat selects how time.Time values are written
type DateFormat int

const (
	DateISO        DateFormat = iota // "2006-01-02T15:04:05Z07:00" using Settings.DateLayout
	DateEpoch                        // "\/Date(1136214245000+0000)\/"
	DateJavaScript                   // new Date(1136214245000)
)

// DateZone controls zone conversion of time.Time values in both directions
type DateZone int

const (
	ZoneKeep DateZone = iota
	ZoneUTC
	ZoneLocal
)

// NonFiniteHandling selects what the writer does with NaN and infinities
type NonFiniteHandling int

const (
	NonFiniteError   NonFiniteHandling = iota // fail with ErrUnsupportedValue
	NonFiniteSymbol                           // bare NaN, Infinity, -Infinity
	NonFiniteString                           // "NaN", "Infinity", "-Infinity"
	NonFiniteDefault                          // 0
)

// TypeNameHandling selects when type hints are embedded
type TypeNameHandling int

const (
	TypeNamesNone    TypeNameHandling = iota
	TypeNamesAuto                     // only where the declared type cannot recover the value
	TypeNamesObjects                  // on every object
	TypeNamesTable                    // on every object, repeated names as table indexes
)

// ArrayKind selects the container generic arrays decode into
type ArrayKind int

const (
	ArraySlice ArrayKind = iota // []any
	ArrayTyped                  // []T when every element has the same type
)

// MapKind selects the container generic objects decode into
type MapKind int

const (
	MapPlain   MapKind = iota // map[string]any
	MapOrdered                // *OrderedMap
)

// CommentHandling selects how // and /* */ comments are treated
type CommentHandling int

const (
	CommentsError CommentHandling = iota
	CommentsIgnore
)

// FloatParseHandling selects the generic representation of fractional numbers
type FloatParseHandling int

const (
	FloatParseFloat64 FloatParseHandling = iota
	FloatParseDecimal                    // *inf.Dec
	FloatParseAuto                       // *inf.Dec only when float64 would lose digits
)

// MissingMemberHandling selects what happens to input members the target lacks
type MissingMemberHandling int

const (
	MissingIgnore MissingMemberHandling = iota
	MissingError
)

// ActivatorFunc creates a new instance for t and returns a pointer to it.
// Returning nil falls through to the default construction strategy.
type ActivatorFunc func(t reflect.Type) (any, error)

// Settings configures both serialization and deserialization.
// Zero values select the defaults.
type Settings struct {
	// Writing
	DateFormat         DateFormat
	DateLayout         string
	DateZone           DateZone
	FloatPrecision     int // 0 writes the shortest form that round-trips
	NonFinite          NonFiniteHandling
	EscapeNonASCII     bool
	EscapeHTML         bool
	Indented           bool
	Indent             string
	TypeNames          TypeNameHandling
	TypeTable          *TypeNameTable
	PreserveReferences bool
	ErrorOnCycle       bool
	Overrides          *OverrideRegistry
	MaxDepth           int // 0 uses DefaultMaxDepth, negative disables the limit
	SortMembers        bool
	OmitNull           bool
	OmitDefault        bool
	OmitEmpty          bool

	// Reading
	ArrayKind              ArrayKind
	MapKind                MapKind
	CaseSensitive          bool
	Comments               CommentHandling
	DateParseLayouts       []string
	DetectDates            bool
	FloatParse             FloatParseHandling
	MissingMembers         MissingMemberHandling
	Binder                 TypeNameBinder
	Activator              ActivatorFunc
	RejectAmbiguousMembers bool

	// Ambient
	Logger       *slog.Logger
	BatchWorkers int
}

// DefaultSettings returns the default settings
func DefaultSettings() *Settings {
	return &Settings{
		DateLayout:   DefaultDateLayout,
		Indent:       DefaultIndent,
		MaxDepth:     DefaultMaxDepth,
		BatchWorkers: runtime.GOMAXPROCS(0),
	}
}

// CompactSettings writes the smallest output: no indentation, nulls omitted
func CompactSettings() *Settings {
	s := DefaultSettings()
	s.OmitNull = true
	return s
}

// IndentedSettings writes human-readable output with sorted members
func IndentedSettings() *Settings {
	s := DefaultSettings()
	s.Indented = true
	s.SortMembers = true
	return s
}

// GraphSettings preserves shared references and embeds compact type names,
// which is what arbitrary object graphs need to round-trip.
func GraphSettings() *Settings {
	s := DefaultSettings()
	s.PreserveReferences = true
	s.TypeNames = TypeNamesTable
	return s
}

// readsTypeHints reports whether $type members select the decoded type
func (s *Settings) readsTypeHints() bool {
	return s.TypeNames != TypeNamesNone || s.Binder != nil
}

// Clone returns a copy that can be modified independently
func (s *Settings) Clone() *Settings {
	if s == nil {
		return DefaultSettings()
	}
	clone := *s
	if s.DateParseLayouts != nil {
		clone.DateParseLayouts = append([]string(nil), s.DateParseLayouts...)
	}
	return &clone
}

// Validate checks the settings for values no conversion could honor
func (s *Settings) Validate() error {
	switch {
	case s.DateFormat < DateISO || s.DateFormat > DateJavaScript:
		return invalidSetting("DateFormat", s.DateFormat)
	case s.DateZone < ZoneKeep || s.DateZone > ZoneLocal:
		return invalidSetting("DateZone", s.DateZone)
	case s.NonFinite < NonFiniteError || s.NonFinite > NonFiniteDefault:
		return invalidSetting("NonFinite", s.NonFinite)
	case s.TypeNames < TypeNamesNone || s.TypeNames > TypeNamesTable:
		return invalidSetting("TypeNames", s.TypeNames)
	case s.ArrayKind < ArraySlice || s.ArrayKind > ArrayTyped:
		return invalidSetting("ArrayKind", s.ArrayKind)
	case s.MapKind < MapPlain || s.MapKind > MapOrdered:
		return invalidSetting("MapKind", s.MapKind)
	case s.Comments < CommentsError || s.Comments > CommentsIgnore:
		return invalidSetting("Comments", s.Comments)
	case s.FloatParse < FloatParseFloat64 || s.FloatParse > FloatParseAuto:
		return invalidSetting("FloatParse", s.FloatParse)
	case s.MissingMembers < MissingIgnore || s.MissingMembers > MissingError:
		return invalidSetting("MissingMembers", s.MissingMembers)
	case s.FloatPrecision < 0:
		return invalidSetting("FloatPrecision", s.FloatPrecision)
	case s.BatchWorkers < 0:
		return invalidSetting("BatchWorkers", s.BatchWorkers)
	case strings.Trim(s.Indent, " \t") != "":
		return invalidSetting("Indent", fmt.Sprintf("%q", s.Indent))
	}
	return nil
}

func invalidSetting(name string, value any) error {
	return &CodecError{
		Op:      "validate_settings",
		Offset:  -1,
		Message: fmt.Sprintf("%s has invalid value %v", name, value),
		Err:     ErrInvalidSettings,
	}
}

// normalize returns a validated copy with unset fields filled from the defaults
func normalize(s *Settings) (*Settings, error) {
	if s == nil {
		return DefaultSettings(), nil
	}
	n := s.Clone()
	if err := mergo.Merge(n, DefaultSettings()); err != nil {
		return nil, &CodecError{Op: "validate_settings", Offset: -1, Message: err.Error(), Err: ErrInvalidSettings}
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if n.ErrorOnCycle && !n.PreserveReferences {
		n.logger().Warn("ErrorOnCycle has no effect without PreserveReferences; cycles are always errors")
	}
	return n, nil
}

// depthLimit returns the effective nesting limit, 0 meaning unlimited
func (s *Settings) depthLimit() int {
	if s.MaxDepth < 0 {
		return 0
	}
	return s.MaxDepth
}

func (s *Settings) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return packageLogger()
}
