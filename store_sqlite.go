package treehaus

import (
	"database/sql"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/golang/glog"
)

// SqliteStore keeps the document in a sqlite database. Replace still
// has whole-document semantics: every node row is rewritten in one
// transaction, so a failed write leaves the previous document intact.
type SqliteStore struct {
	db *sql.DB

	stateLock sync.Mutex
	items     Collection
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errPersistence(err)
	}

	store := &SqliteStore{
		db:    db,
		items: Collection{},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errPersistence(err)
	}

	items, err := store.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	store.items = items
	glog.Infof("[s]loaded %d nodes from %s\n", len(items), path)
	return store, nil
}

func (self *SqliteStore) initSchema() error {
	_, err := self.db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			ord INTEGER NOT NULL,
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			parent_id TEXT,
			expanded INTEGER
		);
	`)
	return err
}

func (self *SqliteStore) load() (Collection, error) {
	rows, err := self.db.Query(`
		SELECT id, kind, title, parent_id, expanded
		FROM nodes ORDER BY ord
	`)
	if err != nil {
		return nil, errPersistence(err)
	}
	defer rows.Close()

	items := Collection{}
	for rows.Next() {
		var node Node
		var parentId sql.NullString
		var expanded sql.NullBool
		if err := rows.Scan(&node.Id, &node.Kind, &node.Title, &parentId, &expanded); err != nil {
			return nil, errPersistence(err)
		}
		if parentId.Valid {
			node.ParentId = &parentId.String
		}
		if expanded.Valid {
			node.Expanded = &expanded.Bool
		}
		items = append(items, node)
	}
	if err := rows.Err(); err != nil {
		return nil, errPersistence(err)
	}

	if err := Validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

func (self *SqliteStore) Read() Collection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.items)
}

func (self *SqliteStore) Replace(collection Collection) error {
	if err := Validate(collection); err != nil {
		return err
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	tx, err := self.db.Begin()
	if err != nil {
		return errPersistence(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return errPersistence(err)
	}
	for i, node := range collection {
		var parentId any
		if node.ParentId != nil {
			parentId = *node.ParentId
		}
		var expanded any
		if node.Expanded != nil {
			expanded = *node.Expanded
		}
		_, err := tx.Exec(
			"INSERT INTO nodes (ord, id, kind, title, parent_id, expanded) VALUES (?, ?, ?, ?, ?, ?)",
			i, node.Id, string(node.Kind), node.Title, parentId, expanded,
		)
		if err != nil {
			return errPersistence(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errPersistence(err)
	}

	self.items = slices.Clone(collection)
	return nil
}

func (self *SqliteStore) Close() error {
	return self.db.Close()
}
