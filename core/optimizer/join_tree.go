// Package optimizer costs join trees and searches the space of join orders.
package optimizer

import (
	"fmt"
	"strings"
)

// JoinTree is either a Leaf (one base relation) or a Join of two disjoint
// subtrees.
type JoinTree interface {
	// Relations lists the leaf relation names, left to right.
	Relations() []string
	Contains(name string) bool
	// SharesRelations reports whether any relation appears in both trees.
	SharesRelations(other JoinTree) bool
	String() string

	isJoinTree()
}

// Leaf is a scan of one base relation.
type Leaf struct {
	Name string
}

func NewLeaf(name string) *Leaf { return &Leaf{Name: name} }

func (l *Leaf) Relations() []string             { return []string{l.Name} }
func (l *Leaf) Contains(name string) bool       { return l.Name == name }
func (l *Leaf) SharesRelations(o JoinTree) bool { return o.Contains(l.Name) }
func (l *Leaf) String() string                  { return l.Name }
func (l *Leaf) isJoinTree()                     {}

// Join is an inner node.
type Join struct {
	Left  JoinTree
	Right JoinTree
}

// NewJoin combines two subtrees. The subtrees must not share a relation; a
// plan that does is a planner bug, so NewJoin panics.
func NewJoin(left, right JoinTree) *Join {
	if left.SharesRelations(right) {
		panic(fmt.Sprintf("optimizer: joining %s with %s repeats a relation", left, right))
	}
	return &Join{Left: left, Right: right}
}

func (j *Join) Relations() []string {
	return append(j.Left.Relations(), j.Right.Relations()...)
}

func (j *Join) Contains(name string) bool {
	return j.Left.Contains(name) || j.Right.Contains(name)
}

func (j *Join) SharesRelations(o JoinTree) bool {
	return j.Left.SharesRelations(o) || j.Right.SharesRelations(o)
}

func (j *Join) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(j.Left.String())
	sb.WriteString(" ⨝ ")
	sb.WriteString(j.Right.String())
	sb.WriteByte(')')
	return sb.String()
}

func (j *Join) isJoinTree() {}

// IsLeftDeep reports whether every join's right child is a leaf.
func IsLeftDeep(t JoinTree) bool {
	j, ok := t.(*Join)
	if !ok {
		return true
	}
	if _, leaf := j.Right.(*Leaf); !leaf {
		return false
	}
	return IsLeftDeep(j.Left)
}
