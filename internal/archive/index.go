package archive

import (
	"path"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/wxzimport/internal/record"
)

// Index maps a record type to the archive positions of its entries, in
// on-disk order. Built once per invocation and never mutated afterwards.
type Index struct {
	positions map[record.Type][]int
}

// BuildIndex scans every entry of a exactly once and groups the JSON entries
// whose directory names one of types.
//
// Entry names are NFC-normalized before classification so archives written
// on systems that store decomposed names still match. Entries in other
// directories, in nested directories, or with another extension are skipped;
// archives may legitimately omit types.
func BuildIndex(a Archive, types []record.Type) Index {
	idx := Index{positions: make(map[record.Type][]int, len(types))}
	known := make(map[string]record.Type, len(types))
	for _, t := range types {
		known[string(t)] = t
		idx.positions[t] = nil
	}

	for i := 0; i < a.Len(); i++ {
		name, err := a.Name(i)
		if err != nil {
			continue
		}
		name = norm.NFC.String(name)

		t, ok := known[path.Dir(name)]
		if !ok || path.Ext(name) != ".json" {
			continue
		}
		idx.positions[t] = append(idx.positions[t], i)
	}
	return idx
}

// Len returns how many entries type t has.
func (x Index) Len(t record.Type) int {
	return len(x.positions[t])
}

// Position returns the archive position of the i-th entry of type t.
func (x Index) Position(t record.Type, i int) (int, bool) {
	p := x.positions[t]
	if i < 0 || i >= len(p) {
		return 0, false
	}
	return p[i], true
}

// Counts returns the number of entries per indexed type, zero included.
func (x Index) Counts() map[record.Type]int {
	out := make(map[record.Type]int, len(x.positions))
	for t, p := range x.positions {
		out[t] = len(p)
	}
	return out
}
