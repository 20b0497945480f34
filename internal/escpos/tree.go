package escpos

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Action is the semantic effect of a resolved command. args holds exactly
// Arity bytes and is only valid for the duration of the call.
type Action func(fx *Effects, args []byte) error

// Handler is the leaf descriptor of a command path.
type Handler struct {
	Name   string
	Arity  int
	Action Action
}

func (h Handler) call(fx *Effects, args []byte) (err error) {
	if len(args) != h.Arity {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrArgumentMismatch, h.Name, h.Arity, len(args))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, h.Name, r)
		}
	}()
	return h.Action(fx, args)
}

// Command binds a byte path, lead byte first, to its handler.
type Command struct {
	Path    []byte
	Handler Handler
}

// Resolution is the outcome of walking a command path through a Tree.
type Resolution int

const (
	Unresolved Resolution = iota
	Prefix
	Resolved
)

func (r Resolution) String() string {
	switch r {
	case Prefix:
		return "prefix"
	case Resolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// node is either internal (children set) or a leaf (handler set), never both.
type node struct {
	children map[byte]*node
	handler  *Handler
}

func (n *node) leaf() bool {
	return n.handler != nil
}

// Tree is the command dispatch trie. It is immutable once built and may be
// shared by any number of decoders.
type Tree struct {
	root  *node
	count int
}

// NewTree builds a dispatch tree from cmds. Paths must be unique and no path
// may be a prefix of another.
func NewTree(cmds []Command) (*Tree, error) {
	t := &Tree{root: &node{children: make(map[byte]*node)}}
	for _, cmd := range cmds {
		if err := t.insert(cmd); err != nil {
			return nil, fmt.Errorf("insert %s: %w", FormatPath(cmd.Path), err)
		}
	}
	return t, nil
}

func mustTree(cmds []Command) *Tree {
	t, err := NewTree(cmds)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tree) insert(cmd Command) error {
	if len(cmd.Path) < 2 {
		return ErrShortPath
	}
	h := cmd.Handler
	if strings.TrimSpace(h.Name) == "" || h.Action == nil {
		return ErrInvalidHandler
	}
	if h.Arity < 0 {
		return ErrInvalidArity
	}

	cur := t.root
	for _, b := range cmd.Path[:len(cmd.Path)-1] {
		next, ok := cur.children[b]
		if !ok {
			next = &node{children: make(map[byte]*node)}
			cur.children[b] = next
		} else if next.leaf() {
			return ErrPathConflict
		}
		cur = next
	}
	last := cmd.Path[len(cmd.Path)-1]
	if _, ok := cur.children[last]; ok {
		return ErrPathConflict
	}
	cur.children[last] = &node{handler: &h}
	t.count++
	return nil
}

// IsLead reports whether b opens a command sequence.
func (t *Tree) IsLead(b byte) bool {
	_, ok := t.root.children[b]
	return ok
}

// Resolve walks path from the root. A path that runs past a leaf, or steps
// onto a byte with no entry, is Unresolved.
func (t *Tree) Resolve(path []byte) (Resolution, Handler) {
	if len(path) == 0 {
		return Unresolved, Handler{}
	}
	cur := t.root
	for _, b := range path {
		if cur.leaf() {
			return Unresolved, Handler{}
		}
		next, ok := cur.children[b]
		if !ok {
			return Unresolved, Handler{}
		}
		cur = next
	}
	if cur.leaf() {
		return Resolved, *cur.handler
	}
	return Prefix, Handler{}
}

// Len returns the number of recognized commands.
func (t *Tree) Len() int {
	return t.count
}

// Commands lists every recognized command ordered by path.
func (t *Tree) Commands() []Command {
	out := make([]Command, 0, t.count)
	var walk func(n *node, path []byte)
	walk = func(n *node, path []byte) {
		if n.leaf() {
			out = append(out, Command{Path: bytes.Clone(path), Handler: *n.handler})
			return
		}
		for b, child := range n.children {
			walk(child, append(path, b))
		}
	}
	walk(t.root, nil)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Path, out[j].Path) < 0
	})
	return out
}

// FormatPath renders a command path the way printer manuals spell it,
// e.g. "ESC d" or "GS ( L".
func FormatPath(path []byte) string {
	parts := make([]string, 0, len(path))
	for _, b := range path {
		switch {
		case b == ESC:
			parts = append(parts, "ESC")
		case b == GS:
			parts = append(parts, "GS")
		case b > 0x20 && b < 0x7F:
			parts = append(parts, string(rune(b)))
		default:
			parts = append(parts, fmt.Sprintf("0x%02X", b))
		}
	}
	return strings.Join(parts, " ")
}
