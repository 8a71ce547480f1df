// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package databricks

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Lookup walks a decoded JSON value along a dotted path. Numeric segments
// index into arrays. It returns nil when any segment is missing.
func Lookup(v any, path string) any {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// FirstString returns the first non-empty string found at any of paths.
func FirstString(v any, paths ...string) string {
	for _, p := range paths {
		if s, ok := Lookup(v, p).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// DecodeAny unmarshals JSON into a generic value.
func DecodeAny(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
