// Package jsongraph converts arbitrary Go object graphs to and from JSON text.
//
// Beyond what encoding/json does, it can preserve shared and circular
// references, embed type names so interface-typed values round-trip, and
// honor per-type overrides and construction hooks.
//
// The package uses an internal package for the shared caches and pools:
//
//   - internal: the LRU and sharded LRU caches, the per-type metadata cache,
//     tiered buffer pools, the stack free-list and the metrics collector
//
// # Basic Usage
//
//	text, err := jsongraph.Serialize(value)
//	err = jsongraph.Deserialize(text, &target)
//	v, err := jsongraph.DeserializeAs[Order](text)
//
// Generic values:
//
//	tree, err := jsongraph.Parse(`{"a":[1,2.5,"x"]}`)
//
// # Object Graphs
//
// With PreserveReferences, the first sighting of a pointer or map is written
// with an "$id" member and every later sighting as {"$ref":id}:
//
//	codec := jsongraph.New(jsongraph.GraphSettings())
//	defer codec.Close()
//	text, err := codec.Serialize(root)
//
// Type names are written in a "$type" member. Non-object values that need a
// type name are wrapped as {"$type":name,"$values":value}. Names come from
// RegisterType, a Settings.Binder, or the package path and type name. On
// read, "$type" is ignored unless TypeNames is set or a Binder is present.
//
// # Configuration
//
// Settings configures both directions. Zero fields take their defaults:
//
//	s := jsongraph.DefaultSettings()
//	s.DateFormat = jsongraph.DateEpoch
//	s.MissingMembers = jsongraph.MissingError
//	codec := jsongraph.New(s)
//
// Struct tags use the "json" key with the options omitempty, string,
// required, readonly, writeonly, default:<value> and alias:<name>.
package jsongraph
