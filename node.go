package treehaus

import (
	"slices"

	"github.com/oklog/ulid/v2"
)

// a single shared document of named nodes (files and folders)
// arranged as a tree. The collection is a flat ordered sequence;
// siblings are the nodes that share a parent, in sequence order.

type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

type Node struct {
	Id       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Title    string  `json:"title"`
	ParentId *string `json:"parentId"`
	// meaningful only for folders. Files never carry it.
	Expanded *bool `json:"expanded,omitempty"`
}

func (self Node) IsFolder() bool {
	return self.Kind == KindFolder
}

// root nodes have a nil parent
func (self Node) IsRoot() bool {
	return self.ParentId == nil
}

type Collection []Node

func NewId() string {
	return ulid.Make().String()
}

// new nodes start at the root. Folders default to expanded.
func NewFolder(title string) Node {
	expanded := true
	return Node{
		Id:       NewId(),
		Kind:     KindFolder,
		Title:    title,
		Expanded: &expanded,
	}
}

func NewFile(title string) Node {
	return Node{
		Id:    NewId(),
		Kind:  KindFile,
		Title: title,
	}
}

func (self Collection) Find(id string) (Node, bool) {
	for _, node := range self {
		if node.Id == id {
			return node, true
		}
	}
	return Node{}, false
}

// direct children of parentId (nil for root), in sequence order
func (self Collection) Children(parentId *string) Collection {
	children := Collection{}
	for _, node := range self {
		if parentId == nil {
			if node.ParentId == nil {
				children = append(children, node)
			}
		} else if node.ParentId != nil && *node.ParentId == *parentId {
			children = append(children, node)
		}
	}
	return children
}

// whether ancestorId appears on the parent chain of node id,
// including id itself
func (self Collection) isSelfOrAncestor(id string, ancestorId string) bool {
	currentId := id
	// bound the walk so a malformed input cannot loop forever
	for i := 0; i <= len(self); i += 1 {
		if currentId == ancestorId {
			return true
		}
		node, ok := self.Find(currentId)
		if !ok || node.ParentId == nil {
			return false
		}
		currentId = *node.ParentId
	}
	return false
}

// the node and its transitive descendants, preserving sequence order
func (self Collection) Subtree(id string) Collection {
	subtree := Collection{}
	for _, node := range self {
		if self.isSelfOrAncestor(node.Id, id) {
			subtree = append(subtree, node)
		}
	}
	return subtree
}

// Rename replaces the title of id. Missing ids are rejected so that a
// rename racing a concurrent delete fails loudly.
func (self Collection) Rename(id string, title string) (Collection, error) {
	if title == "" {
		return nil, errInvalidCollection("empty title for %s", id)
	}
	out := slices.Clone(self)
	for i := range out {
		if out[i].Id == id {
			out[i].Title = title
			return out, nil
		}
	}
	return nil, errTargetNotFound(id)
}

// ToggleExpanded flips the expanded state of a folder.
func (self Collection) ToggleExpanded(id string) (Collection, error) {
	out := slices.Clone(self)
	for i := range out {
		if out[i].Id == id {
			if !out[i].IsFolder() {
				return nil, errInvalidPosition("cannot expand file %s", id)
			}
			expanded := out[i].Expanded == nil || !*out[i].Expanded
			out[i].Expanded = &expanded
			return out, nil
		}
	}
	return nil, errTargetNotFound(id)
}

// Delete removes a node and its whole subtree.
func (self Collection) Delete(id string) (Collection, error) {
	if _, ok := self.Find(id); !ok {
		return nil, errTargetNotFound(id)
	}
	out := Collection{}
	for _, node := range self {
		if !self.isSelfOrAncestor(node.Id, id) {
			out = append(out, node)
		}
	}
	return out, nil
}
