package abistore

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	lru "github.com/hashicorp/golang-lru/v2"

	"walletbot/internal/domain"
)

//go:embed abis/*.json
var builtin embed.FS

const defaultCacheSize = 64

// FileStore loads ABIs from <dir>/<name>.json, falling back to the builtin
// set. Parsed ABIs are shared through an LRU cache.
type FileStore struct {
	dir   string
	cache *lru.Cache[string, abi.ABI]
}

func NewFileStore(dir string, cacheSize int) (*FileStore, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, abi.ABI](cacheSize)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, cache: cache}, nil
}

func (s *FileStore) Load(name string) (abi.ABI, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return abi.ABI{}, fmt.Errorf("%w: empty abi selector", domain.ErrContractNotFound)
	}
	// selectors name a file directly inside the abi directory
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return abi.ABI{}, fmt.Errorf("%w: invalid abi selector %q", domain.ErrContractNotFound, name)
	}
	if parsed, ok := s.cache.Get(key); ok {
		return parsed, nil
	}
	raw, err := s.read(key)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", key, err)
	}
	s.cache.Add(key, parsed)
	return parsed, nil
}

func (s *FileStore) read(key string) ([]byte, error) {
	if s.dir != "" {
		raw, err := os.ReadFile(filepath.Join(s.dir, key+".json"))
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read abi %s: %w", key, err)
		}
	}
	raw, err := builtin.ReadFile("abis/" + key + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: abi %s", domain.ErrContractNotFound, key)
	}
	return raw, nil
}

// Parse accepts a bare ABI array or an artifact object with an "abi" field.
func Parse(raw []byte) (abi.ABI, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return abi.ABI{}, err
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, errors.New("artifact has no abi field")
		}
		trimmed = artifact.ABI
	}
	return abi.JSON(bytes.NewReader(trimmed))
}
