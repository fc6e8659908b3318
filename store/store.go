// Package store implements the line-oriented append-only block file store
// described in SPEC_FULL.md §4.4, grounded on the interface-first pattern
// of the teacher repo's stores/ packages.
package store

import (
	"bufio"
	"os"
	"sync"

	"github.com/brackwater-labs/slchain/errors"
	"github.com/brackwater-labs/slchain/model"
	"golang.org/x/sync/errgroup"
)

// BlockStore is the persistence interface every component depends on.
type BlockStore interface {
	Append(b model.Block) error
	Length() (int, error)
	Get(idx int) (model.Block, error)
	GetByIndices(idxs []int) ([]model.Block, error)
	GetRange(from, to int) ([]model.Block, error)
	GetLastN(n int) ([]model.Block, error)
	TruncateLast() error
	Path() string
}

// FileStore is a BlockStore backed by a single append-only file, one
// canonical-JSON block per line (0-indexed on disk, 1-indexed by Block.Idx).
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// Open creates path if it does not exist and returns a FileStore over it.
func Open(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "open block store file", err)
	}
	defer f.Close()
	return &FileStore{path: path}, nil
}

// Path returns the underlying file path, used by the shell's `myfile`
// command.
func (s *FileStore) Path() string {
	return s.path
}

// Append writes b as a new line at the end of the file.
func (s *FileStore) Append(b model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := b.MarshalJSON()
	if err != nil {
		return errors.New(errors.CodeSerialization, "encode block for append", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New(errors.CodeStoreIO, "open block store file for append", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.New(errors.CodeStoreIO, "append block to store file", err)
	}
	return nil
}

// Length returns the number of blocks currently stored.
func (s *FileStore) Length() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, err := s.readLines()
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Get returns the block at position idx (0-indexed on disk).
func (s *FileStore) Get(idx int) (model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, err := s.readLines()
	if err != nil {
		return model.Block{}, err
	}
	if idx < 0 || idx >= len(lines) {
		return model.Block{}, errors.New(errors.CodeStoreIO, "block index out of range", nil)
	}
	return decodeLine(lines[idx])
}

// GetByIndices decodes the blocks at the requested positions (0-indexed on
// disk) concurrently via errgroup, one goroutine per index, and returns them
// in the order of idxs.
func (s *FileStore) GetByIndices(idxs []int) ([]model.Block, error) {
	s.mu.RLock()
	lines, err := s.readLines()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	results := make([]model.Block, len(idxs))

	var g errgroup.Group
	for i, idx := range idxs {
		i, idx := i, idx
		g.Go(func() error {
			if idx < 0 || idx >= len(lines) {
				return errors.New(errors.CodeStoreIO, "block index out of range", nil)
			}
			b, err := decodeLine(lines[idx])
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetRange returns blocks [from, to) (0-indexed on disk).
func (s *FileStore) GetRange(from, to int) ([]model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	if from < 0 || to > len(lines) || from > to {
		return nil, errors.New(errors.CodeStoreIO, "block range out of bounds", nil)
	}

	out := make([]model.Block, 0, to-from)
	for _, line := range lines[from:to] {
		b, err := decodeLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GetLastN returns the last n blocks, or fewer if the store has less than n.
func (s *FileStore) GetLastN(n int) ([]model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	start := len(lines) - n
	if start < 0 {
		start = 0
	}

	out := make([]model.Block, 0, len(lines)-start)
	for _, line := range lines[start:] {
		b, err := decodeLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// TruncateLast removes the final block from the store, used when the node
// rewrites its tail to adopt a competing fork.
func (s *FileStore) TruncateLast() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errors.New(errors.CodeStoreIO, "cannot truncate an empty store", nil)
	}

	f, err := os.OpenFile(s.path, os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New(errors.CodeStoreIO, "open block store file for truncate", err)
	}
	defer f.Close()

	for _, line := range lines[:len(lines)-1] {
		if _, err := f.Write([]byte(line + "\n")); err != nil {
			return errors.New(errors.CodeStoreIO, "rewrite block store file", err)
		}
	}
	return nil
}

func (s *FileStore) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "open block store file for read", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreIO, "scan block store file", err)
	}
	return lines, nil
}

func decodeLine(line string) (model.Block, error) {
	var b model.Block
	if err := b.UnmarshalJSON([]byte(line)); err != nil {
		return model.Block{}, errors.New(errors.CodeSerialization, "decode stored block", err)
	}
	return b, nil
}
