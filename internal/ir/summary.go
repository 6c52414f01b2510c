package ir

import (
	"slices"
	"strings"
)

// Summary is the constraint summary of one SCC, as written in override
// files and stored in the summary cache.
//
// PNIMap gives the lattice cell of a variable as `<lattice> <size|p>`. An
// optional trailing `#group` token puts every variable of the same group
// into one shared cell:
//
//	"printf": "func p #1"
//	"cstr":   "ptr p #2"
type Summary struct {
	Constraints []string          `json:"constraints"`
	PNIMap      map[string]string `json:"pni_map,omitempty"`
}

// SummaryFile maps comma separated function names to their summary. The
// key of a multi-function SCC lists every member.
type SummaryFile map[string]Summary

// Lookup returns the summary whose key lists name.
func (f SummaryFile) Lookup(name string) (Summary, string, bool) {
	for _, key := range f.SortedKeys() {
		if slices.Contains(SplitFuncNames(key), name) {
			return f[key], key, true
		}
	}
	return Summary{}, "", false
}

// SortedKeys returns the keys in byte order.
func (f SummaryFile) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SplitFuncNames splits a comma separated key, trimming blanks.
func SplitFuncNames(key string) []string {
	var out []string
	for _, n := range strings.Split(key, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// JoinFuncNames is the inverse of SplitFuncNames.
func JoinFuncNames(names []string) string {
	return strings.Join(names, ",")
}

// SplitCellGroup separates the `#group` token from a pni_map entry.
func SplitCellGroup(entry string) (cell, group string) {
	fields := strings.Fields(entry)
	if n := len(fields); n > 0 && strings.HasPrefix(fields[n-1], "#") {
		return strings.Join(fields[:n-1], " "), fields[n-1]
	}
	return strings.Join(fields, " "), ""
}
