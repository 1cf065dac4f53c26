package rowfill

import "strings"

// Pending returns the 0-based indices of rows whose result cell is absent
// or blank after trimming. It is a pure function of current table state,
// which is what makes interrupted runs resumable: no checkpoint file, just
// re-scan the table. Calling it again after a partial run returns only the
// rows still missing results.
func Pending(t *Table, resultCol int) []int {
	var pending []int
	for i := 0; i < t.Len(); i++ {
		if strings.TrimSpace(t.Cell(i, resultCol)) == "" {
			pending = append(pending, i)
		}
	}
	return pending
}
