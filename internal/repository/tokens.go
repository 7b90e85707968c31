package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/sourccey/kiosk-relay/internal/model"
)

type TokenStore interface {
	Load() ([]string, error)
	Save(snapshot model.TokenSnapshot) error
}

// FileTokenStore persists the whole token set as {"valid_tokens":[...]},
// overwriting the file on every save. Snapshots older than the last one
// written are dropped.
type FileTokenStore struct {
	path string

	mu          sync.Mutex
	lastVersion uint64
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

// Load returns the persisted tokens. A missing file is an empty set.
func (s *FileTokenStore) Load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var file model.TokenFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.ValidTokens))
	tokens := make([]string, 0, len(file.ValidTokens))
	for _, token := range file.ValidTokens {
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (s *FileTokenStore) Save(snapshot model.TokenSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot.Version != 0 && snapshot.Version <= s.lastVersion {
		return nil
	}

	tokens := snapshot.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	if err := writeJSONAtomic(s.path, model.TokenFile{ValidTokens: tokens}); err != nil {
		return err
	}
	s.lastVersion = snapshot.Version
	return nil
}
