package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/infra-ci/testtree/ui"
)

// WriteTree renders the recorded outcomes as a tree mirroring the node
// hierarchy, one line per node.
func WriteTree(w io.Writer, c *Collector, useColor bool) error {
	records := c.Records()

	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.ID.String()] = true
	}

	// Children keep their event order; containers report after their
	// children, but attachment is by id, not position.
	byParent := make(map[string][]Record)
	var roots []Record
	for _, r := range records {
		parent, ok := r.ID.ParentId()
		if ok && known[parent.String()] {
			byParent[parent.String()] = append(byParent[parent.String()], r)
		} else {
			roots = append(roots, r)
		}
	}

	var b strings.Builder
	var render func(r Record, depth int, isLast bool, parentIsLast []bool)
	render = func(r Record, depth int, isLast bool, parentIsLast []bool) {
		b.WriteString(ui.BuildTreePrefix(depth, isLast, parentIsLast))
		b.WriteString(fmt.Sprintf("%s %s", statusLabel(r), r.DisplayName))
		if detail := detailFor(r); detail != "" {
			b.WriteString(": " + detail)
		}
		b.WriteString("\n")

		children := byParent[r.ID.String()]
		childParents := append(append([]bool{}, parentIsLast...), isLast)
		for i, child := range children {
			render(child, depth+1, i == len(children)-1, childParents)
		}
	}
	for i, root := range roots {
		render(root, 0, i == len(roots)-1, nil)
	}

	out := b.String()
	if !useColor {
		out = stripansi.Strip(out)
	}
	_, err := io.WriteString(w, out)
	return err
}
