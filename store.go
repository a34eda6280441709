package treehaus

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/goccy/go-json"

	"github.com/golang/glog"
)

// Store owns the authoritative persisted collection. Persistence is
// whole document: each successful replace overwrites the entire stored
// collection. Replace re-validates every invariant and must write
// durably before reporting success; on failure the in-memory state is
// left at the last durable state.
type Store interface {
	Read() Collection
	Replace(collection Collection) error
}

// the persisted document shape, one document for the whole system
type Document struct {
	Items Collection `json:"items"`
}

// FileStore persists the document as a single JSON file, written to a
// temp file and renamed into place so a failed write cannot corrupt
// the previous document.
type FileStore struct {
	path string

	stateLock sync.Mutex
	items     Collection
}

func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path:  path,
		items: Collection{},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// first run, start with an empty document
		return store, nil
	} else if err != nil {
		return nil, errPersistence(err)
	}

	var document Document
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, errPersistence(fmt.Errorf("corrupt document %s: %s", path, err))
	}
	if document.Items == nil {
		document.Items = Collection{}
	}
	if err := Validate(document.Items); err != nil {
		return nil, err
	}
	store.items = document.Items
	glog.Infof("[s]loaded %d nodes from %s\n", len(store.items), path)
	return store, nil
}

func (self *FileStore) Read() Collection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.items)
}

func (self *FileStore) Replace(collection Collection) error {
	if err := Validate(collection); err != nil {
		return err
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	data, err := json.Marshal(&Document{Items: collection})
	if err != nil {
		return errPersistence(err)
	}

	// the content must be durable before the rename makes it current,
	// so sync the file itself, not just the directory
	tempPath := fmt.Sprintf("%s.tmp", self.path)
	if err := writeFileSync(tempPath, data); err != nil {
		os.Remove(tempPath)
		return errPersistence(err)
	}
	if err := os.Rename(tempPath, self.path); err != nil {
		os.Remove(tempPath)
		return errPersistence(err)
	}
	if err := syncDir(filepath.Dir(self.path)); err != nil {
		glog.V(2).Infof("[s]dir sync %s\n", err)
	}

	self.items = slices.Clone(collection)
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
