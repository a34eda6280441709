package treehaus

// Validate checks the full set of tree invariants against a
// collection. The store runs this on every replace; it does not trust
// that the caller used the move engine.
//
//  1. every id is unique and non-empty
//  2. a non-nil parentId references an existing folder
//  3. the parent relation is acyclic
//  4. titles are non-empty, kinds are file or folder
//  5. files never carry expanded state
func Validate(collection Collection) error {
	byId := map[string]Node{}
	for _, node := range collection {
		if node.Id == "" {
			return errInvalidCollection("empty id")
		}
		if _, ok := byId[node.Id]; ok {
			return errInvalidCollection("duplicate id %s", node.Id)
		}
		byId[node.Id] = node
	}

	for _, node := range collection {
		switch node.Kind {
		case KindFile, KindFolder:
		default:
			return errInvalidCollection("unknown kind %q for %s", node.Kind, node.Id)
		}
		if node.Title == "" {
			return errInvalidCollection("empty title for %s", node.Id)
		}
		if node.Kind == KindFile && node.Expanded != nil {
			return errInvalidCollection("expanded set on file %s", node.Id)
		}
		if node.ParentId != nil {
			parent, ok := byId[*node.ParentId]
			if !ok {
				return errInvalidCollection("missing parent %s for %s", *node.ParentId, node.Id)
			}
			if !parent.IsFolder() {
				return errInvalidCollection("parent %s of %s is not a folder", parent.Id, node.Id)
			}
		}
	}

	for _, node := range collection {
		currentId := node.Id
		for i := 0; ; i += 1 {
			current := byId[currentId]
			if current.ParentId == nil {
				break
			}
			if i >= len(collection) {
				return errInvalidCollection("parent cycle through %s", node.Id)
			}
			currentId = *current.ParentId
		}
	}

	return nil
}
