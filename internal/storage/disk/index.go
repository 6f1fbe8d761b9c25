package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// indexFileName is the session index file kept at the storage root.
const indexFileName = "index.json"

// IndexEntry records one resumable session: where its saved game lives and
// the session name it was saved under. Entries exist while a session is
// loadable, independent of whether it is currently live.
type IndexEntry struct {
	Path        string `json:"path"`
	SessionName string `json:"session_name"`
}

// Index is the durable list of sessions available to resume or join. It is
// kept in sync with the live session store and survives server restarts.
// All methods are safe for concurrent use.
type Index struct {
	mu      sync.Mutex
	store   Store
	path    string
	entries []IndexEntry
}

// OpenIndex loads the session index from root/index.json, creating an empty
// index if the file does not exist yet.
//
// Precondition: root must be a writable directory path.
// Postcondition: Returns an Index ready for use, or a non-nil error if an
// existing index file is unreadable.
func OpenIndex(root string) (*Index, error) {
	idx := &Index{path: filepath.Join(root, indexFileName)}

	data, err := idx.store.Load(idx.path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return idx, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		return nil, fmt.Errorf("parsing session index: %w", err)
	}
	return idx, nil
}

// Add appends an entry and persists the index. Re-adding a session name
// replaces its previous entry.
//
// Postcondition: The entry is present in memory even if the disk write fails;
// the write error is returned for the caller to log.
func (i *Index) Add(entry IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	replaced := false
	for n, e := range i.entries {
		if e.SessionName == entry.SessionName {
			i.entries[n] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		i.entries = append(i.entries, entry)
	}
	return i.persistLocked()
}

// Remove deletes the entry for the given session name and persists the index.
// Removing an absent name is a no-op.
func (i *Index) Remove(sessionName string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	kept := i.entries[:0]
	for _, e := range i.entries {
		if e.SessionName != sessionName {
			kept = append(kept, e)
		}
	}
	i.entries = kept
	return i.persistLocked()
}

// Entries returns a copy of all index entries.
func (i *Index) Entries() []IndexEntry {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]IndexEntry, len(i.entries))
	copy(out, i.entries)
	return out
}

// EntryFor returns the entry for the given session name.
func (i *Index) EntryFor(sessionName string) (IndexEntry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, e := range i.entries {
		if e.SessionName == sessionName {
			return e, true
		}
	}
	return IndexEntry{}, false
}

func (i *Index) persistLocked() error {
	data, err := json.MarshalIndent(i.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session index: %w", err)
	}
	return i.store.Save(i.path, data)
}
