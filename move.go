package treehaus

import (
	"slices"
)

type Position string

const (
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
	PositionInside Position = "inside"
)

// Move computes a new collection with draggedId placed relative to
// targetId. It is a pure function: the input collection is never
// mutated, and on error it is returned unchanged by the caller's copy.
//
// targetId "" means append at the end of the root level. position
// "inside" requires a folder target. Moving a folder carries its whole
// subtree, preserving the descendants' relative order and expanded
// state; only the dragged node's parent changes.
func Move(collection Collection, draggedId string, targetId string, position Position) (Collection, error) {
	switch position {
	case PositionBefore, PositionAfter, PositionInside:
	default:
		return nil, errInvalidPosition("%s", position)
	}

	if _, ok := collection.Find(draggedId); !ok {
		return nil, errTargetNotFound(draggedId)
	}

	var target Node
	if targetId != "" {
		var ok bool
		target, ok = collection.Find(targetId)
		if !ok {
			// the target raced a concurrent delete. Fail the whole move
			// rather than silently falling back to root placement.
			return nil, errTargetNotFound(targetId)
		}
		// walking up from the target, hitting the dragged node means the
		// target is the dragged node itself or one of its descendants
		if collection.isSelfOrAncestor(targetId, draggedId) {
			return nil, errCycle(draggedId, targetId)
		}
		if position == PositionInside && !target.IsFolder() {
			return nil, errInvalidPosition("inside file %s", targetId)
		}
	}

	// the dragged node first, then for folders its descendant closure
	// in existing sequence order. The flat sequence does not promise
	// that a parent precedes its children, so place the dragged node
	// explicitly.
	dragged, _ := collection.Find(draggedId)
	moved := Collection{dragged}
	remaining := Collection{}
	for _, node := range collection {
		if node.Id == draggedId {
			continue
		}
		if collection.isSelfOrAncestor(node.Id, draggedId) {
			moved = append(moved, node)
		} else {
			remaining = append(remaining, node)
		}
	}

	// the dragged node's new parent. Descendants keep theirs.
	var parentId *string
	if targetId == "" {
		parentId = nil
	} else if position == PositionInside {
		id := targetId
		parentId = &id
	} else {
		parentId = target.ParentId
	}
	moved[0].ParentId = parentId

	insertIndex := len(remaining)
	if targetId != "" {
		targetIndex := slices.IndexFunc(remaining, func(node Node) bool {
			return node.Id == targetId
		})
		switch position {
		case PositionBefore:
			insertIndex = targetIndex
		case PositionAfter:
			insertIndex = targetIndex + 1
		case PositionInside:
			// append at the end of the target's existing subtree
			insertIndex = targetIndex + 1
			for i := targetIndex + 1; i < len(remaining); i += 1 {
				if remaining.isSelfOrAncestor(remaining[i].Id, targetId) {
					insertIndex = i + 1
				}
			}
		}
	}

	out := Collection{}
	out = append(out, remaining[:insertIndex]...)
	out = append(out, moved...)
	out = append(out, remaining[insertIndex:]...)
	return out, nil
}
