// Package fhir maps raw FHIR R4 bundles into the compact summaries the API
// returns next to the raw payload. Upstream bundles are passed through
// schemaless, so resources stay map-shaped and the summarizers pick fields
// defensively.
package fhir

import (
	"encoding/json"
	"fmt"
)

// Bundle is the searchset envelope returned by FHIR search interactions.
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	Total        int     `json:"total"`
	Entry        []Entry `json:"entry"`
}

type Entry struct {
	Resource map[string]any `json:"resource"`
}

func ParseBundle(body []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return b, nil
}

// ResourcesOfType returns the entry resources matching resourceType,
// skipping anything else in the bundle (OperationOutcome entries included).
func (b Bundle) ResourcesOfType(resourceType string) []map[string]any {
	var out []map[string]any
	for _, e := range b.Entry {
		if str(e.Resource, "resourceType") == resourceType {
			out = append(out, e.Resource)
		}
	}
	return out
}

// -- field helpers over map-shaped resources --

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func list(m map[string]any, key string) []map[string]any {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range raw {
		if v, ok := item.(map[string]any); ok {
			out = append(out, v)
		}
	}
	return out
}

func boolOrNil(m map[string]any, key string) *bool {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(bool); ok {
		return &v
	}
	return nil
}

func strList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
