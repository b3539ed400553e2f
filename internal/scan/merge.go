package scan

import "github.com/kamilpajak/commentguard/pkg/models"

// Merge overlays updates onto existing by comment id. A later comment with
// the same id replaces the earlier one; output keeps first-seen id order.
func Merge(existing []models.Comment, updates ...[]models.Comment) []models.Comment {
	out := make([]models.Comment, 0, len(existing))
	pos := make(map[string]int, len(existing))

	put := func(c models.Comment) {
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			return
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}

	for _, c := range existing {
		put(c)
	}
	for _, batch := range updates {
		for _, c := range batch {
			put(c)
		}
	}
	return out
}
