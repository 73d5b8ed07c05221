package attendance

import (
	"sort"

	"github.com/classroll/attendance/internal/model"
)

// SortSessions orders sessions most recent date first, ties broken by id
// descending. The input slice is not modified.
func SortSessions(in []model.Session) []model.Session {
	out := make([]model.Session, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			// ISO dates order lexically.
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out
}
