package textutil

import "strings"

// UniqueOrdered merges the given lists into one, trimming entries and dropping blanks and
// duplicates. The first occurrence of each value decides its position.
func UniqueOrdered(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, value := range list {
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			out = append(out, trimmed)
		}
	}
	return out
}

// Difference returns the entries of values absent from exclude, preserving order.
func Difference(values []string, exclude []string) []string {
	drop := make(map[string]struct{}, len(exclude))
	for _, value := range exclude {
		drop[strings.TrimSpace(value)] = struct{}{}
	}
	out := make([]string, 0)
	for _, value := range values {
		if _, ok := drop[value]; ok {
			continue
		}
		out = append(out, value)
	}
	return out
}
