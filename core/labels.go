package core

import "strings"

// NormalizeTag lowercases a tag and collapses inner whitespace.
func NormalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), " ")
}

// MergeLabels appends labels to existing, skipping blanks and case-insensitive duplicates.
// The first spelling seen wins and order is preserved.
func MergeLabels(existing []string, labels ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(labels))
	merged := make([]string, 0, len(existing)+len(labels))
	for _, label := range append(append([]string(nil), existing...), labels...) {
		label = strings.Join(strings.Fields(label), " ")
		if label == "" {
			continue
		}
		key := labelKey(label)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, label)
	}
	return merged
}

// HasLabel reports whether labels contains label, ignoring case.
func HasLabel(labels []string, label string) bool {
	key := labelKey(label)
	for _, l := range labels {
		if labelKey(l) == key {
			return true
		}
	}
	return false
}

func labelKey(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// Normalized returns the labels as stored: tags lowercased, both sets deduplicated.
func (l Labels) Normalized() Labels {
	tags := make([]string, len(l.Tags))
	for i, tag := range l.Tags {
		tags[i] = NormalizeTag(tag)
	}
	return Labels{
		Tags:       MergeLabels(nil, tags...),
		Categories: MergeLabels(nil, l.Categories...),
		Summary:    strings.TrimSpace(l.Summary),
	}
}
