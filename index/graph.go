package index

import (
	"context"
	"fmt"
	"io"
	"strings"

	"xdao.co/depot/storage"
)

// WriteGraph exports the persisted tree rooted at rootID as a DOT
// digraph. Branch nodes appear as ellipses labeled with a shortened
// identifier, leaves as boxes; edges carry the key segment. Shared
// sub-trees show up as multiple edges converging on one node.
func WriteGraph(ctx context.Context, p storage.ContentProvider, rootID TreeIdentifier, w io.Writer) error {
	g := &graphVisitor{nodes: make(map[TreeIdentifier]struct{})}
	if err := Walk(ctx, p, rootID, g); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("digraph tree {\n")
	b.WriteString("\trankdir=LR;\n")
	for _, line := range g.lines {
		b.WriteByte('\t')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

type graphVisitor struct {
	nodes map[TreeIdentifier]struct{}
	lines []string
	leafN int
}

func (g *graphVisitor) declare(id TreeIdentifier) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.lines = append(g.lines, fmt.Sprintf("%q [label=%q];", nodeName(id), shortLabel(id)))
}

func (g *graphVisitor) VisitRoot(rootID TreeIdentifier, root *Node) Signal {
	g.declare(rootID)
	return Continue
}

func (g *graphVisitor) VisitBranch(parentID TreeIdentifier, key Key, segment string, branchID TreeIdentifier, branch *Node, depth int) Signal {
	g.declare(branchID)
	g.lines = append(g.lines, fmt.Sprintf("%q -> %q [label=%q];", nodeName(parentID), nodeName(branchID), segment))
	return Continue
}

func (g *graphVisitor) VisitLeaf(parentID TreeIdentifier, key Key, segment string, leaf LeafNode, depth int) {
	// Leaves get per-edge nodes: the payload reference is opaque,
	// so there is nothing meaningful to merge on.
	g.leafN++
	name := fmt.Sprintf("leaf%d", g.leafN)
	g.lines = append(g.lines, fmt.Sprintf("%q [shape=box, label=%q];", name, fmt.Sprintf("%d bytes", len(leaf))))
	g.lines = append(g.lines, fmt.Sprintf("%q -> %q [label=%q];", nodeName(parentID), name, segment))
}

func (g *graphVisitor) VisitDone(rootID TreeIdentifier) {}

func nodeName(id TreeIdentifier) string { return id.String() }

func shortLabel(id TreeIdentifier) string {
	s := id.String()
	if len(s) > 16 {
		return s[:8] + ".." + s[len(s)-6:]
	}
	return s
}
