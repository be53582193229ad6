package tasklist

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ecociel/remind/lib/domain"
)

type Order string

const (
	Unsorted  Order = ""
	TitleAsc  Order = "title_asc"
	TitleDesc Order = "title_desc"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case Unsorted, TitleAsc, TitleDesc:
		return o, nil
	}
	return Unsorted, fmt.Errorf("unknown sort order %q", s)
}

// Search keeps the tasks whose title contains query, ignoring case. An empty
// query keeps everything.
func Search(tasks []domain.Task, query string) []domain.Task {
	if query == "" {
		return tasks
	}
	q := strings.ToLower(query)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
		}
	}
	return out
}

// Sort returns a sorted copy; equal titles keep their input order.
func Sort(tasks []domain.Task, o Order) []domain.Task {
	if o == Unsorted {
		return tasks
	}
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		if o == TitleDesc {
			return strings.Compare(b.Title, a.Title)
		}
		return strings.Compare(a.Title, b.Title)
	})
	return out
}
