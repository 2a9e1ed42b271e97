package jsongraph

import "time"

// Reserved member names recognized at the start of an object
const (
	RefKey    = "$ref"
	IDKey     = "$id"
	TypeKey   = "$type"
	ValuesKey = "$values"
)

const (
	// Limits
	DefaultMaxDepth = 64

	// Array types built from $type names, e.g. "[8]int", are capped in
	// length and in total size
	MaxHintedArrayLength = 4096
	MaxHintedArrayBytes  = 1 << 20

	// Caches
	DefaultTypeNameCacheSize = 1024
	DefaultFoldCacheSize     = 4096

	// Stack free-list used for cycle detection
	StackPoolLimit   = 16
	StackPoolCapHint = 32
	StackPoolMaxCap  = 1024

	// Formatting
	DefaultIndent     = "  "
	DefaultDateLayout = time.RFC3339Nano

	// Logging
	SlowOperationThreshold = 100 * time.Millisecond
	MaxLoggedErrorLength   = 200
)

// literal tokens
const (
	nullLiteral  = "null"
	trueLiteral  = "true"
	falseLiteral = "false"
	dateCtor     = "new Date("
	epochPrefix  = "/Date("
	epochSuffix  = ")/"
)
