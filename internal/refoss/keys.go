package refoss

import (
	"strconv"
	"strings"
)

// KeyInstances resolves a logical component key against d.
//
// If key itself is present the result is exactly [key]. Otherwise every
// "<key>:<id>" entry is returned in the order d holds them.
func KeyInstances(d *Dict, key string) []string {
	if d.Has(key) {
		return []string{key}
	}

	var out []string
	prefix := key + ":"
	for _, k := range d.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// KeyIDs returns the numeric instance ids of every "<key>:<id>" component in
// d. Keys with a non-numeric suffix are skipped.
func KeyIDs(d *Dict, key string) []int {
	var ids []int
	prefix := key + ":"
	for _, k := range d.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// SplitKey splits "switch:1" into ("switch", 1, true). Bare or malformed
// keys return (key, 0, false).
func SplitKey(key string) (string, int, bool) {
	name, suffix, found := strings.Cut(key, ":")
	if !found {
		return key, 0, false
	}
	id, err := strconv.Atoi(suffix)
	if err != nil {
		return key, 0, false
	}
	return name, id, true
}
