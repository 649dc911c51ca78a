package router

import (
	"slices"
	"strings"
)

// cmdNode is one route token. Groups like "festival" carry no command of
// their own; leaves like "festival send" do.
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	return strings.Fields(route)
}

func (n *cmdNode) add(route []string, c Command) {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
}

// find returns the node at path, or nil.
func (n *cmdNode) find(path []string) *cmdNode {
	cur := n
	for _, tok := range path {
		next, ok := cur.child(tok)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *cmdNode) childNames() []string {
	names := make([]string, 0, len(n.children))
	for k := range n.children {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// commands returns every command at or below n in route order.
func (n *cmdNode) commands() []Command {
	if n == nil {
		return nil
	}
	var out []Command
	if n.cmd != nil {
		out = append(out, *n.cmd)
	}
	for _, name := range n.childNames() {
		out = append(out, n.children[name].commands()...)
	}
	return out
}
