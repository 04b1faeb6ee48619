package pe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// cacheSchema versions the on-disk entry; bump it when cachedIndex changes.
const cacheSchema uint16 = 2

// DiskCache keeps segmented path indices on disk as msgpack files under
// <dir>/pidx/<first two digest chars>/<digest>.mp. Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

type cachedIndex struct {
	Schema uint16   `msgpack:"v"`
	Digest string   `msgpack:"d"`
	Coords []uint32 `msgpack:"c"`
	Sinks  []uint32 `msgpack:"s"`
}

// OpenDiskCache opens the cache rooted at dir, creating it if needed. An
// empty dir means the user cache directory plus "meshc".
func OpenDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate cache dir: %w", err)
		}
		dir = filepath.Join(base, "meshc")
	}
	if err := os.MkdirAll(filepath.Join(dir, "pidx"), 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) entryPath(digest string) string {
	shard := "_"
	if len(digest) >= 2 {
		shard = digest[:2]
	}
	return filepath.Join(c.dir, "pidx", shard, digest+".mp")
}

// Put stores an index under digest, replacing any previous entry through
// a rename so readers never see a partial file.
func (c *DiskCache) Put(digest string, coords, sinks []uint32) error {
	if c == nil {
		return nil
	}
	data, err := msgpack.Marshal(&cachedIndex{Schema: cacheSchema, Digest: digest, Coords: coords, Sinks: sinks})
	if err != nil {
		return fmt.Errorf("encode index %s: %w", digest, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.entryPath(digest)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp-" + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get loads the index stored under digest. Entries of another schema or
// whose recorded digest does not match are reported absent.
func (c *DiskCache) Get(digest string) (coords, sinks []uint32, ok bool, err error) {
	if c == nil {
		return nil, nil, false, nil
	}
	c.mu.RLock()
	data, err := os.ReadFile(c.entryPath(digest))
	c.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}

	var ci cachedIndex
	if err := msgpack.Unmarshal(data, &ci); err != nil {
		return nil, nil, false, fmt.Errorf("decode index %s: %w", digest, err)
	}
	if ci.Schema != cacheSchema || ci.Digest != digest {
		return nil, nil, false, nil
	}
	return ci.Coords, ci.Sinks, true, nil
}

// DropAll removes every cached index. The tree is renamed aside first so a
// concurrent Put lands in a fresh directory.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Join(c.dir, "pidx")
	old := dir + ".old-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.Rename(dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}
