package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Options bounds the recursive identifier search.
type Options struct {
	// Keys are checked on every visited object, in order.
	Keys []string
	// Nested names the containers the search descends into.
	Nested []string
	// MinLength is the exclusive lower bound on an identifier's length.
	MinLength int
	// MaxDepth is the deepest nesting level visited; the root is depth 0.
	MaxDepth int
	// ListLimit caps how many elements of a nested list are visited.
	ListLimit int
}

// DefaultOptions match the generator's submit responses.
func DefaultOptions() Options {
	return Options{
		Keys:      []string{"task_id", "taskId", "id", "conversionId", "conversion_id", "taskID"},
		Nested:    []string{"data", "conversion", "result", "response", "payload", "body", "item"},
		MinLength: 10,
		MaxDepth:  3,
		ListLimit: 3,
	}
}

// FindField walks tree looking for an object that carries one of opts.Keys
// as a string longer than opts.MinLength. It returns that object and the
// key that qualified it.
func FindField(tree any, opts Options) (map[string]any, string, bool) {
	return findField(tree, opts, 0)
}

func findField(node any, opts Options, depth int) (map[string]any, string, bool) {
	obj, ok := node.(map[string]any)
	if depth > opts.MaxDepth || !ok {
		return nil, "", false
	}
	for _, key := range opts.Keys {
		if s, ok := obj[key].(string); ok && len(s) > opts.MinLength {
			return obj, key, true
		}
	}
	for _, key := range opts.Nested {
		switch nested := obj[key].(type) {
		case map[string]any:
			if found, field, ok := findField(nested, opts, depth+1); ok {
				return found, field, true
			}
		case []any:
			limit := min(len(nested), opts.ListLimit)
			for _, item := range nested[:limit] {
				if found, field, ok := findField(item, opts, depth+1); ok {
					return found, field, true
				}
			}
		}
	}
	return nil, "", false
}

// Identifier is what a submit response tells us about the new generation.
type Identifier struct {
	TaskID        string
	ConversionID1 string
	ConversionID2 string
	ETA           string
	SourceURL     string
}

// ExtractIdentifier searches a decoded response body for the task identifier.
func ExtractIdentifier(body any) (Identifier, bool) {
	src, key, ok := FindField(body, DefaultOptions())
	if !ok {
		return Identifier{}, false
	}
	id := Identifier{
		TaskID:        stringify(src[key]),
		ConversionID1: firstString(src, "conversion_id_1", "conversionId1"),
		ConversionID2: firstString(src, "conversion_id_2", "conversionId2"),
		ETA:           firstString(src, "eta"),
	}
	return id, id.TaskID != ""
}

// Decode parses a JSON body preserving numbers as json.Number.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return out, nil
}

// firstString returns the first non-empty value among keys, rendering
// numbers and booleans as text.
func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringify(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
