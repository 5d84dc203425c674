package index

import (
	"context"

	"xdao.co/depot/storage"
)

// Signal is a visitor callback's verdict on further descent.
type Signal int

const (
	// Continue descends into the visited node's children.
	Continue Signal = iota
	// Stop prunes descent below the visited node. Returned from
	// VisitRoot it ends the walk.
	Stop
)

// Visitor receives the nodes of a depth-first tree walk. Children are
// visited in lexical segment order. Each distinct (parent identifier,
// segment) pair is descended into at most once, so structurally shared
// sub-trees are emitted a single time.
type Visitor interface {
	VisitRoot(rootID TreeIdentifier, root *Node) Signal
	VisitBranch(parentID TreeIdentifier, key Key, segment string, branchID TreeIdentifier, branch *Node, depth int) Signal
	VisitLeaf(parentID TreeIdentifier, key Key, segment string, leaf LeafNode, depth int)
	VisitDone(rootID TreeIdentifier)
}

type edge struct {
	parent  TreeIdentifier
	segment string
}

// Walk traverses the persisted tree rooted at rootID, loading nodes
// from p as it descends. VisitDone fires exactly once, including when
// the root visit stops the walk; node load or decode failures abort
// the walk before VisitDone.
func Walk(ctx context.Context, p storage.ContentProvider, rootID TreeIdentifier, v Visitor) error {
	root, err := LoadNode(ctx, p, rootID)
	if err != nil {
		return err
	}
	if v.VisitRoot(rootID, root) == Stop {
		v.VisitDone(rootID)
		return nil
	}
	w := &walker{ctx: ctx, provider: p, visitor: v, seen: make(map[edge]struct{})}
	if err := w.descend(rootID, root, nil, 0); err != nil {
		return err
	}
	v.VisitDone(rootID)
	return nil
}

type walker struct {
	ctx      context.Context
	provider storage.ContentProvider
	visitor  Visitor
	seen     map[edge]struct{}
}

func (w *walker) descend(parentID TreeIdentifier, parent *Node, key Key, depth int) error {
	for _, segment := range parent.Segments() {
		e := edge{parent: parentID, segment: segment}
		if _, ok := w.seen[e]; ok {
			continue
		}
		w.seen[e] = struct{}{}

		childID := parent.Children[segment]
		child, err := LoadNode(w.ctx, w.provider, childID)
		if err != nil {
			return err
		}
		childKey := key.Child(segment)
		if child.IsLeaf() {
			w.visitor.VisitLeaf(parentID, childKey, segment, child.Leaf, depth)
			continue
		}
		if w.visitor.VisitBranch(parentID, childKey, segment, childID, child, depth) == Stop {
			continue
		}
		if err := w.descend(childID, child, childKey, depth+1); err != nil {
			return err
		}
	}
	return nil
}
