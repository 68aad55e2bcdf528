package fillers

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const idListKey = "filler_ids"

// Entry is one filler clip as pushed by the server.
type Entry struct {
	ID    string
	Audio []byte
}

// Cache is a local directory of pre-rendered filler clips, one
// "<id>.wav" per entry. The id list is memoized in a small in-memory
// cache so GetRandom does not rescan the directory on every hit.
type Cache struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	memo *gocache.Cache
}

// New creates a cache rooted at dir, creating it when missing.
func New(dir string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fillers: create dir %s: %w", dir, err)
	}
	return &Cache{
		dir:    dir,
		logger: logger,
		memo:   gocache.New(5*time.Second, time.Minute),
	}, nil
}

// GetRandom returns the path of a uniformly chosen clip. It never blocks
// and never fails on an empty cache; ok is false instead.
func (c *Cache) GetRandom() (path string, ok bool) {
	ids := c.ids()
	if len(ids) == 0 {
		return "", false
	}
	id := ids[rand.Intn(len(ids))]
	return c.pathFor(id), true
}

// Sync reconciles the directory against the authoritative entry list:
// entries missing locally are written, local files absent from the list
// are deleted. The result only depends on entries, never on prior cache
// state, so the operation is idempotent.
func (c *Cache) Sync(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if !validID(e.ID) {
			c.logger.Warn("filler entry with unsafe id skipped", zap.String("id", e.ID))
			continue
		}
		want[e.ID] = e.Audio
	}

	local, err := c.scan()
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(local))
	for _, id := range local {
		have[id] = true
	}

	var added, removed int
	for id, audio := range want {
		if have[id] {
			continue
		}
		if err := os.WriteFile(c.pathFor(id), audio, 0o644); err != nil {
			return fmt.Errorf("fillers: write %s: %w", id, err)
		}
		added++
	}
	for _, id := range local {
		if _, keep := want[id]; keep {
			continue
		}
		if err := os.Remove(c.pathFor(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fillers: remove %s: %w", id, err)
		}
		removed++
	}

	c.memo.Delete(idListKey)
	if added > 0 || removed > 0 {
		c.logger.Info("filler cache synced",
			zap.Int("added", added),
			zap.Int("removed", removed),
			zap.Int("total", len(want)))
	}
	return nil
}

// IDs returns the ids currently on disk, sorted.
func (c *Cache) IDs() []string {
	return append([]string(nil), c.ids()...)
}

func (c *Cache) ids() []string {
	if v, found := c.memo.Get(idListKey); found {
		return v.([]string)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, err := c.scan()
	if err != nil {
		c.logger.Warn("filler dir scan failed", zap.Error(err))
		return nil
	}
	c.memo.Set(idListKey, ids, gocache.DefaultExpiration)
	return ids
}

// scan lists the ids on disk. Caller holds c.mu.
func (c *Cache) scan() ([]string, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("fillers: read dir %s: %w", c.dir, err)
	}
	var ids []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".wav") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(d.Name(), ".wav"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Cache) pathFor(id string) string {
	return filepath.Join(c.dir, id+".wav")
}

// validID accepts only ids that stay inside the cache directory when
// joined as a file name.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}
