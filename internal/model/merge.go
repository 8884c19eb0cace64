// Package model holds the mergeable entity graph assembled from CI sources:
// tenants, projects, pipelines, jobs, builds, tests and deployments.
//
// Merging follows one rule everywhere: a populated scalar is never replaced,
// an empty one takes the incoming value, and child collections are unioned by
// identity with recursive merges.
package model

import "slices"

type node[T any] interface {
	Merge(T)
	Clone() T
}

func mergeString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if *dst == 0 {
		*dst = src
	}
}

func mergeFloat(dst *float64, src float64) {
	if *dst == 0 {
		*dst = src
	}
}

// mergeChildren unions src into dst by key. Inserted children are cloned so
// the graphs never share nodes.
func mergeChildren[V node[V]](dst, src map[string]V) map[string]V {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]V, len(src))
	}
	for k, v := range src {
		if cur, ok := dst[k]; ok {
			cur.Merge(v)
			continue
		}
		dst[k] = v.Clone()
	}
	return dst
}

func cloneChildren[V node[V]](src map[string]V) map[string]V {
	if src == nil {
		return nil
	}
	out := make(map[string]V, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}

// mergeNames appends names from src not already in dst, keeping order.
func mergeNames(dst, src []string) []string {
	for _, n := range src {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}

// SortedKeys returns the keys of m in sorted order, for deterministic output.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
