package graph

import (
	"strconv"
	"strings"
)

var slugReplacer = strings.NewReplacer(" ", "_", "%", "percent", "&", "and")

// Slug derives an entity id from a display name.
func Slug(name string) string {
	return slugReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// ValueSlug derives the id of a value entity such as "calories_12_5".
func ValueSlug(prefix string, v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return prefix + "_" + strings.ReplaceAll(s, ".", "_")
}
