// Package index implements a persistent keyed tree over a content
// provider.
//
// Branch nodes map key segments to child trees, leaf nodes hold an
// opaque payload reference. Every node is stored as its own
// deterministically-encoded blob, so a node's identifier is derived
// from its content: identical sub-trees collapse to one stored copy
// no matter how many parents reference them.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"xdao.co/depot/ident"
	"xdao.co/depot/internal/codec"
	"xdao.co/depot/storage"
)

// TreeIdentifier addresses one persisted tree node.
type TreeIdentifier = ident.Identifier

// Key is a path of segments from the root to a node.
type Key []string

func (k Key) String() string { return strings.Join(k, "/") }

// Child returns k extended by one segment. The result shares no
// backing array with k, so it stays valid while the walk continues
// past sibling branches.
func (k Key) Child(segment string) Key {
	child := make(Key, len(k)+1)
	copy(child, k)
	child[len(k)] = segment
	return child
}

// LeafNode is the opaque payload reference stored at a leaf. The tree
// never interprets it; callers typically store an identifier's wire
// form or a chunk identifier's wire form.
type LeafNode []byte

// ErrInvalidNode reports a stored node that decodes but violates the
// node shape (for example, one carrying both children and a leaf).
var ErrInvalidNode = errors.New("invalid tree node")

// ErrKeyConflict reports a Put whose path crosses an existing leaf or
// would replace an existing branch with a leaf.
var ErrKeyConflict = errors.New("key conflicts with existing entry")

// wireNode is the stored shape of a node. Child identifiers travel in
// their binary form under sorted segment keys, which the deterministic
// encoder guarantees, so two equal nodes encode to equal bytes.
type wireNode struct {
	Children map[string][]byte `json:"children,omitempty"`
	Leaf     []byte            `json:"leaf,omitempty"`
}

// Node is one decoded tree node as seen by traversal.
type Node struct {
	Children map[string]TreeIdentifier
	Leaf     LeafNode
}

// IsLeaf reports whether the node carries a payload reference rather
// than children.
func (n *Node) IsLeaf() bool { return n.Leaf != nil }

// Segments returns the node's child segments in lexical order.
func (n *Node) Segments() []string {
	segments := make([]string, 0, len(n.Children))
	for segment := range n.Children {
		segments = append(segments, segment)
	}
	sort.Strings(segments)
	return segments
}

// Tree is an in-memory tree under construction. The zero value is not
// usable; call New.
type Tree struct {
	children map[string]*Tree
	leaf     LeafNode
}

// New returns an empty branch.
func New() *Tree {
	return &Tree{children: make(map[string]*Tree)}
}

// Put stores leaf under key, creating intermediate branches as
// needed. Re-putting an existing leaf key replaces its payload;
// crossing an existing leaf with a longer key, or replacing an
// existing branch with a leaf, fails with ErrKeyConflict.
func (t *Tree) Put(key Key, leaf LeafNode) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrKeyConflict)
	}
	if leaf == nil {
		return errors.New("nil leaf payload")
	}
	cur := t
	for i, segment := range key[:len(key)-1] {
		child, ok := cur.children[segment]
		if !ok {
			child = New()
			cur.children[segment] = child
		}
		if child.leaf != nil {
			return fmt.Errorf("%w: %q is a leaf", ErrKeyConflict, key[:i+1])
		}
		cur = child
	}
	last := key[len(key)-1]
	if existing, ok := cur.children[last]; ok && existing.leaf == nil {
		return fmt.Errorf("%w: %q is a branch", ErrKeyConflict, key)
	}
	cur.children[last] = &Tree{leaf: leaf}
	return nil
}

// Save persists the tree bottom-up and returns the root's identifier.
// Identical sub-trees dedup inside the provider because they encode to
// identical blobs.
func (t *Tree) Save(ctx context.Context, p storage.ContentProvider) (TreeIdentifier, error) {
	if t.leaf != nil {
		return saveNode(ctx, p, wireNode{Leaf: t.leaf})
	}
	wire := wireNode{Children: make(map[string][]byte, len(t.children))}
	for segment, child := range t.children {
		id, err := child.Save(ctx, p)
		if err != nil {
			return TreeIdentifier{}, err
		}
		wire.Children[segment] = id.AppendWire(nil)
	}
	return saveNode(ctx, p, wire)
}

func saveNode(ctx context.Context, p storage.ContentProvider, wire wireNode) (TreeIdentifier, error) {
	data, err := codec.Marshal(wire)
	if err != nil {
		return TreeIdentifier{}, fmt.Errorf("encoding tree node: %w", err)
	}
	id, err := storage.WriteBlob(ctx, p, data)
	if err != nil {
		return TreeIdentifier{}, fmt.Errorf("storing tree node: %w", err)
	}
	return id, nil
}

// LoadNode reads and decodes one persisted node.
func LoadNode(ctx context.Context, p storage.ContentProvider, id TreeIdentifier) (*Node, error) {
	data, err := storage.ReadBlob(ctx, p, id)
	if err != nil {
		return nil, fmt.Errorf("reading tree node %s: %w", id, err)
	}
	var wire wireNode
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding tree node %s: %w", id, err)
	}
	if wire.Leaf != nil && len(wire.Children) > 0 {
		return nil, fmt.Errorf("%w: node %s is both branch and leaf", ErrInvalidNode, id)
	}
	node := &Node{Leaf: LeafNode(wire.Leaf)}
	if wire.Leaf == nil {
		node.Children = make(map[string]TreeIdentifier, len(wire.Children))
		for segment, raw := range wire.Children {
			child, rest, err := ident.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: child %q of %s: %v", ErrInvalidNode, segment, id, err)
			}
			if len(rest) != 0 {
				return nil, fmt.Errorf("%w: child %q of %s has %d trailing bytes", ErrInvalidNode, segment, id, len(rest))
			}
			node.Children[segment] = child
		}
	}
	return node, nil
}
