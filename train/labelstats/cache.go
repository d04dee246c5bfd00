// Package labelstats persists per-file label class counts so the loss
// weights of later runs over the same data skip reading every scene file.
package labelstats

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/twoears/scenetcn/train"
)

// Cache is a train.LabelCounter backed by a LevelDB database. Misses are
// counted by the wrapped counter and stored.
type Cache struct {
	db    *leveldb.DB
	inner train.LabelCounter

	hits, misses int
}

// Open opens or creates the database at path. An empty path keeps the
// database in memory for the lifetime of the process.
func Open(path string, inner train.LabelCounter) (*Cache, error) {
	if inner == nil {
		return nil, errors.New("labelstats: a fallback label counter is required")
	}
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening label statistics %q", path)
	}
	return &Cache{db: db, inner: inner}, nil
}

func key(f train.SceneFile, mode train.LabelMode) []byte {
	return []byte(string(mode) + "\x00" + f.Path)
}

// CountLabels implements train.LabelCounter.
func (c *Cache) CountLabels(f train.SceneFile, mode train.LabelMode) (train.ClassCounts, error) {
	k := key(f, mode)
	data, err := c.db.Get(k, nil)
	switch {
	case err == nil:
		counts, err := decode(data)
		if err == nil {
			c.hits++
			return counts, nil
		}
	case !errors.Is(err, leveldb.ErrNotFound):
		return nil, errors.Wrapf(err, "reading label statistics of %s", f.Path)
	}

	c.misses++
	counts, err := c.inner.CountLabels(f, mode)
	if err != nil {
		return nil, err
	}
	data, err = encode(counts)
	if err != nil {
		return nil, err
	}
	if err := c.db.Put(k, data, nil); err != nil {
		return nil, errors.Wrapf(err, "storing label statistics of %s", f.Path)
	}
	return counts, nil
}

// Stats returns the number of lookups served from the database and counted anew.
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

// Close closes the database.
func (c *Cache) Close() error {
	return errors.Wrap(c.db.Close(), "closing label statistics")
}

// JSON object keys must be strings.
func encode(counts train.ClassCounts) ([]byte, error) {
	m := make(map[string]int64, len(counts))
	for class, n := range counts {
		m[strconv.Itoa(int(class))] = n
	}
	data, err := json.Marshal(m)
	return data, errors.Wrap(err, "encoding label statistics")
}

func decode(data []byte) (train.ClassCounts, error) {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decoding label statistics")
	}
	counts := make(train.ClassCounts, len(m))
	for k, n := range m {
		class, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding label statistics class %q", k)
		}
		counts[int32(class)] = n
	}
	return counts, nil
}
