// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package json is a thin indirection over the JSON codec used on the
// wire encode/decode hot path, so that callers never need to import
// encoding/json (or a specific third-party replacement) directly.
package json

import (
	segjson "github.com/segmentio/encoding/json"
)

// RawMessage is an alias so callers don't need to import encoding/json
// solely for the raw-message type.
type RawMessage = segjson.RawMessage

// Marshal encodes v using the configured JSON codec.
func Marshal(v any) ([]byte, error) {
	return segjson.Marshal(v)
}

// Unmarshal decodes data into v using the configured JSON codec.
func Unmarshal(data []byte, v any) error {
	return segjson.Unmarshal(data, v)
}
