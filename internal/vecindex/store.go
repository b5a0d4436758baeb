package vecindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Entry is one vector to be indexed, tagged with the chunk it embeds.
type Entry struct {
	ChunkID string
	Vector  []float32
}

// ChunkText is chunk content queued for re-embedding during a rebuild.
type ChunkText struct {
	ChunkID string
	Text    string
}

// Stats describes one user's index.
type Stats struct {
	Count int
	Dim   int
}

// Embedder turns chunk text back into vectors during index rebuilds.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store owns one index file per user under dir. All mutations follow a
// load-mutate-persist cycle under a per-user lock, and persistence goes
// through a temp file plus rename so readers never observe a torn write.
type Store struct {
	dir string
	dim int

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewStore(dir string, dim int) *Store {
	return &Store{
		dir:   dir,
		dim:   dim,
		locks: make(map[int64]*sync.Mutex),
	}
}

// Add appends entries to the user's index, creating it on first use, and
// returns the slot assigned to each entry in input order.
func (s *Store) Add(ctx context.Context, userID int64, entries []Entry) ([]int, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries to add")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	f, ids, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = newFlat(s.dim)
	}

	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		vectors[i] = e.Vector
	}
	first, err := f.add(vectors)
	if err != nil {
		return nil, fmt.Errorf("adding vectors for user %d: %w", userID, err)
	}

	slots := make([]int, len(entries))
	for i, e := range entries {
		slots[i] = first + i
		ids = append(ids, e.ChunkID)
	}

	if err := s.persist(userID, f, ids); err != nil {
		return nil, err
	}
	return slots, nil
}

// Search returns the chunk ids of the k nearest vectors to query, closest
// first. A user with no index gets an empty result, not an error.
func (s *Store) Search(ctx context.Context, userID int64, query []float32, k int) ([]string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	f, ids, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return []string{}, nil
	}

	hits, err := f.search(query, k)
	if err != nil {
		return nil, fmt.Errorf("searching index for user %d: %w", userID, err)
	}

	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		chunkIDs[i] = ids[h.Slot]
	}
	return chunkIDs, nil
}

// Rebuild re-embeds the remaining chunks and replaces the user's index
// wholesale, returning the new slot for each chunk id. With nothing
// remaining the index file is removed. The old index stays in place
// whenever any step fails.
func (s *Store) Rebuild(ctx context.Context, userID int64, remaining []ChunkText, embedder Embedder) (map[string]int, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if len(remaining) == 0 {
		if err := os.Remove(s.path(userID)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing empty index for user %d: %w", userID, err)
		}
		return map[string]int{}, nil
	}

	texts := make([]string, len(remaining))
	for i, c := range remaining {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("re-embedding %d chunks for user %d: %w", len(remaining), userID, err)
	}

	f := newFlat(s.dim)
	if _, err := f.add(vectors); err != nil {
		return nil, fmt.Errorf("rebuilding index for user %d: %w", userID, err)
	}

	ids := make([]string, len(remaining))
	slots := make(map[string]int, len(remaining))
	for i, c := range remaining {
		ids[i] = c.ChunkID
		slots[c.ChunkID] = i
	}

	if err := s.persist(userID, f, ids); err != nil {
		return nil, err
	}
	return slots, nil
}

// Stats reports the size of the user's index; a missing index counts zero.
func (s *Store) Stats(ctx context.Context, userID int64) (Stats, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	f, _, err := s.load(userID)
	if err != nil {
		return Stats{}, err
	}
	if f == nil {
		return Stats{Dim: s.dim}, nil
	}
	return Stats{Count: f.size(), Dim: f.dim}, nil
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *Store) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d.index", userID))
}

// load reads the user's index file. A missing file yields (nil, nil, nil).
func (s *Store) load(userID int64) (*flat, []string, error) {
	file, err := os.Open(s.path(userID))
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening index for user %d: %w", userID, err)
	}
	defer file.Close()

	f, ids, err := decodeIndex(file, s.dim)
	if err != nil {
		return nil, nil, fmt.Errorf("reading index for user %d: %w", userID, err)
	}
	return f, ids, nil
}

func (s *Store) persist(userID int64, f *flat, ids []string) error {
	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf("user_%d_*.tmp", userID))
	if err != nil {
		return fmt.Errorf("creating temp index for user %d: %w", userID, err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeIndex(tmp, f, ids); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index for user %d: %w", userID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing index for user %d: %w", userID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing index for user %d: %w", userID, err)
	}

	if err := os.Rename(tmp.Name(), s.path(userID)); err != nil {
		return fmt.Errorf("replacing index for user %d: %w", userID, err)
	}
	return nil
}
