package aging

import (
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/statefile"
)

// Store persists the aging record between runs. Implementations are
// injected so Decide stays a pure function over loaded state.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore keeps the aging record in a single JSON document.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (*State, error) {
	return statefile.Load[State](s.Path)
}

func (s *FileStore) Save(st *State) error {
	return statefile.Save(s.Path, st)
}
