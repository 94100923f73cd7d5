// Package prompt abstracts interactive selection so core operations can
// run headless under tests and in CI.
package prompt

import (
	"fmt"

	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// Item is one selectable entry.
type Item struct {
	Label       string
	Description string
}

// Selector presents choices to the user. Implementations must return
// ErrCanceled (via paccerr) when the user aborts.
type Selector interface {
	ChooseOne(title string, items []Item) (int, error)
	ChooseMany(title string, items []Item) ([]int, error)
}

// canceled reports a user abort in the shared error taxonomy.
func canceled(title string) error {
	return paccerr.Validation("selection_canceled", "selection %q canceled", title)
}

// Fuzzy is the terminal Selector backed by a fuzzy finder.
type Fuzzy struct{}

// NewFuzzy returns the interactive terminal selector.
func NewFuzzy() *Fuzzy { return &Fuzzy{} }

// ChooseOne opens the finder over items and returns the chosen index.
func (*Fuzzy) ChooseOne(title string, items []Item) (int, error) {
	idx, err := fuzzyfinder.Find(
		items,
		func(i int) string { return items[i].Label },
		fuzzyfinder.WithPromptString(title+" > "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return fmt.Sprintf("%s\n\n%s", items[i].Label, items[i].Description)
		}),
	)
	if err != nil {
		if err == fuzzyfinder.ErrAbort {
			return 0, canceled(title)
		}
		return 0, paccerr.Validation("selection_failed", "selector failed").WithCause(err)
	}
	return idx, nil
}

// ChooseMany opens the finder in multi-select mode.
func (*Fuzzy) ChooseMany(title string, items []Item) ([]int, error) {
	idxs, err := fuzzyfinder.FindMulti(
		items,
		func(i int) string { return items[i].Label },
		fuzzyfinder.WithPromptString(title+" > "),
	)
	if err != nil {
		if err == fuzzyfinder.ErrAbort {
			return nil, canceled(title)
		}
		return nil, paccerr.Validation("selection_failed", "selector failed").WithCause(err)
	}
	return idxs, nil
}

// Scripted replays pre-recorded answers; tests use it in place of Fuzzy.
type Scripted struct {
	Ones  []int
	Manys [][]int

	oneCursor  int
	manyCursor int
}

// ChooseOne pops the next scripted single answer.
func (s *Scripted) ChooseOne(title string, items []Item) (int, error) {
	if s.oneCursor >= len(s.Ones) {
		return 0, canceled(title)
	}
	idx := s.Ones[s.oneCursor]
	s.oneCursor++
	if idx < 0 || idx >= len(items) {
		return 0, paccerr.Validation("selection_failed", "scripted index %d out of range", idx)
	}
	return idx, nil
}

// ChooseMany pops the next scripted multi answer.
func (s *Scripted) ChooseMany(title string, items []Item) ([]int, error) {
	if s.manyCursor >= len(s.Manys) {
		return nil, canceled(title)
	}
	idxs := s.Manys[s.manyCursor]
	s.manyCursor++
	for _, idx := range idxs {
		if idx < 0 || idx >= len(items) {
			return nil, paccerr.Validation("selection_failed", "scripted index %d out of range", idx)
		}
	}
	return idxs, nil
}
