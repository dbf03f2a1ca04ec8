// Package jsonpath extracts a single field from a JSON document by walking
// a dot-separated path of object keys, e.g. "data.url".
package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPathNotFound reports that a path segment was missing or that an
// intermediate value was not a JSON object.
var ErrPathNotFound = errors.New("json path not found")

// ExtractString decodes body as JSON, walks path through successive object
// properties, and returns the string value at the end of the path.
func ExtractString(body []byte, path string) (string, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	value, err := Walk(root, strings.Split(path, "."))
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: value at %q is not a string", ErrPathNotFound, path)
	}
	return s, nil
}

// Walk follows segments through nested JSON objects and returns the value
// at the end. A missing field or a non-object intermediate yields
// ErrPathNotFound, never a panic.
func Walk(value any, segments []string) (any, error) {
	for _, seg := range segments {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not reachable through an object", ErrPathNotFound, seg)
		}
		value, ok = obj[seg]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrPathNotFound, seg)
		}
	}
	return value, nil
}
