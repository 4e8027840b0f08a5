package output

import "sort"

// StringLiteralEntry is one decoded string-literal table record: its table
// index plus its offset/length into the metadata's string-literal data
// blob, per the documented stringliteral.json schema.
type StringLiteralEntry struct {
	Index  int    `json:"index"`
	Offset int32  `json:"offset"`
	Length int32  `json:"length"`
	Value  string `json:"value"`
}

// BuildStringLiteralJSON sorts entries by ascending table index, keeping
// the file deterministic for a fixed input, and renders stringliteral.json
// as a flat array.
func BuildStringLiteralJSON(entries []StringLiteralEntry) ([]byte, error) {
	sorted := make([]StringLiteralEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return marshalIndent(sorted)
}
