package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// Plain is a line-based Selector for terminals where the fuzzy finder is
// unavailable, and for piped input. Items are presented as a numbered
// list read with one prompt per choice.
type Plain struct {
	reader io.Reader
	writer io.Writer
}

// NewPlain creates a Plain selector on stdin and stdout.
func NewPlain() *Plain {
	return &Plain{reader: os.Stdin, writer: os.Stdout}
}

// NewPlainWithIO creates a Plain selector with custom streams, for tests.
func NewPlainWithIO(r io.Reader, w io.Writer) *Plain {
	return &Plain{reader: r, writer: w}
}

// ChooseOne presents a numbered list and reads one selection. A single
// item is chosen without prompting; empty input defaults to the first.
func (p *Plain) ChooseOne(title string, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, paccerr.Validation("selection_failed", "nothing to select from")
	}
	if len(items) == 1 {
		return 0, nil
	}

	p.printList(title, items)
	fmt.Fprintf(p.writer, "Select [1]: ")

	input, err := p.readLine()
	if err != nil {
		return 0, err
	}
	if input == "" {
		return 0, nil
	}
	idx, err := parseIndex(input, len(items))
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// ChooseMany presents a numbered list and reads a comma-separated
// selection. Empty input selects everything.
func (p *Plain) ChooseMany(title string, items []Item) ([]int, error) {
	if len(items) == 0 {
		return nil, paccerr.Validation("selection_failed", "nothing to select from")
	}

	p.printList(title, items)
	fmt.Fprintf(p.writer, "Select (comma-separated) [all]: ")

	input, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if input == "" {
		all := make([]int, len(items))
		for i := range items {
			all[i] = i
		}
		return all, nil
	}

	var picked []int
	seen := make(map[int]bool)
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idx, err := parseIndex(field, len(items))
		if err != nil {
			return nil, err
		}
		if !seen[idx] {
			seen[idx] = true
			picked = append(picked, idx)
		}
	}
	if len(picked) == 0 {
		return nil, paccerr.Validation("selection_failed", "no items selected")
	}
	return picked, nil
}

func (p *Plain) printList(title string, items []Item) {
	fmt.Fprintf(p.writer, "%s:\n", title)
	for i, item := range items {
		if item.Description != "" {
			fmt.Fprintf(p.writer, "  [%d] %s (%s)\n", i+1, item.Label, item.Description)
		} else {
			fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, item.Label)
		}
	}
}

func (p *Plain) readLine() (string, error) {
	input, err := bufio.NewReader(p.reader).ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", paccerr.Validation("selection_canceled", "selection canceled")
		}
		return "", errors.Wrap(err, "reading selection")
	}
	return strings.TrimSpace(input), nil
}

// parseIndex converts 1-based user input into a 0-based index.
func parseIndex(input string, n int) (int, error) {
	sel, err := strconv.Atoi(input)
	if err != nil {
		return 0, paccerr.Validation("selection_failed", "%q is not a number", input)
	}
	if sel < 1 || sel > n {
		return 0, paccerr.Validation("selection_failed", "%d is out of range [1-%d]", sel, n)
	}
	return sel - 1, nil
}
