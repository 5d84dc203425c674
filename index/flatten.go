package index

import (
	"context"

	"xdao.co/depot/storage"
)

// Entry is one leaf of a flattened tree.
type Entry struct {
	Key  Key
	Leaf LeafNode
}

// Flatten walks the persisted tree rooted at rootID and returns its
// leaves in depth-first lexical key order. Leaves reachable through a
// shared sub-tree appear once, under the first key that reaches them.
func Flatten(ctx context.Context, p storage.ContentProvider, rootID TreeIdentifier) ([]Entry, error) {
	f := &flattenVisitor{}
	if err := Walk(ctx, p, rootID, f); err != nil {
		return nil, err
	}
	return f.entries, nil
}

type flattenVisitor struct {
	entries []Entry
}

func (f *flattenVisitor) VisitRoot(rootID TreeIdentifier, root *Node) Signal { return Continue }

func (f *flattenVisitor) VisitBranch(parentID TreeIdentifier, key Key, segment string, branchID TreeIdentifier, branch *Node, depth int) Signal {
	return Continue
}

func (f *flattenVisitor) VisitLeaf(parentID TreeIdentifier, key Key, segment string, leaf LeafNode, depth int) {
	f.entries = append(f.entries, Entry{Key: key, Leaf: leaf})
}

func (f *flattenVisitor) VisitDone(rootID TreeIdentifier) {}
