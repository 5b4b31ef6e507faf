// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 provides a strict decoder for the JSON-RPC 2.0 envelope,
// adapted from the Go MCP SDK's internal/jsonrpc2 package: Go's
// encoding/json matches field names case-insensitively by default, which
// would let a field like "Method" or "METHOD" smuggle past case-sensitive
// routing logic downstream.
package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// StrictUnmarshal unmarshals a JSON-RPC 2.0 envelope into v with
// case-sensitive field matching: it rejects top-level keys that are
// case-variant duplicates of one another (e.g. "method" and "Method"),
// rejects a key that matches one of v's json-tagged fields
// case-insensitively but not exactly, and disallows unknown fields. v's
// json tags are taken as the closed set of fields the envelope may carry.
//
// Only the envelope's own top-level keys are inspected; the opaque
// params/result payloads nested under them are left alone, since their
// shape belongs to the method being called rather than the envelope.
func StrictUnmarshal(data []byte, v interface{}) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}

	if err := validateNoDuplicateKeys(raw); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	if err := validateFieldCase(raw, extractExpectedFields(v)); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	return nil
}

// validateNoDuplicateKeys rejects case-variant duplicate keys in the
// envelope's top-level object (e.g. both "method" and "Method" present).
func validateNoDuplicateKeys(raw map[string]json.RawMessage) error {
	seen := make(map[string]string, len(raw))
	for key := range raw {
		lower := strings.ToLower(key)
		if original, exists := seen[lower]; exists && original != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
		}
		seen[lower] = key
	}
	return nil
}

// validateFieldCase rejects a key that matches an expected field name
// case-insensitively but not exactly: the classic smuggling attempt of
// sending "Method" to ride alongside (or instead of) "method".
func validateFieldCase(raw map[string]json.RawMessage, expected map[string]bool) error {
	for key := range raw {
		if expected[key] {
			continue
		}
		lower := strings.ToLower(key)
		for name := range expected {
			if strings.ToLower(name) == lower {
				return fmt.Errorf("field name case mismatch: got %q, expected %q", key, name)
			}
		}
		// No case-insensitive match either: an unknown field, left for
		// DisallowUnknownFields to reject.
	}
	return nil
}

// extractExpectedFields returns the set of JSON field names v's struct
// tags declare.
func extractExpectedFields(v interface{}) map[string]bool {
	fields := make(map[string]bool)
	t := reflect.TypeOf(v)
	if t == nil {
		return fields
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fields
	}
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := tag
		if idx := strings.Index(tag, ","); idx != -1 {
			name = tag[:idx]
		}
		if name != "" {
			fields[name] = true
		}
	}
	return fields
}
