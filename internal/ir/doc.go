// Package ir holds the external data model of the type recovery engine.
//
// This package contains type definitions only. Every other internal package
// may import ir; ir imports nothing internal, so it stays the foundational
// layer of the module.
//
// Key design constraints:
//   - Programs, summaries and results are plain structs with snake_case
//     JSON tags, decodable from JSON, YAML-converted JSON or CUE exports.
//   - Content hashes use MarshalCanonical, never encoding/json directly.
//   - Values are addressed by ValueRef, which has a stable text form.
package ir
