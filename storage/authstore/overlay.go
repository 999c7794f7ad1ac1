package authstore

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// overlay holds writes that have not reached the backend yet. A key is
// either in puts or in dels, never both.
type overlay struct {
	puts map[string][]byte
	dels map[string]struct{}
}

func newOverlay() *overlay {
	return &overlay{
		puts: make(map[string][]byte),
		dels: make(map[string]struct{}),
	}
}

func (o *overlay) put(key, value []byte) {
	k := string(key)
	delete(o.dels, k)
	o.puts[k] = util.CopyBytes(value)
}

func (o *overlay) del(key []byte) {
	k := string(key)
	delete(o.puts, k)
	o.dels[k] = struct{}{}
}

func (o *overlay) lookup(key []byte) (value []byte, found, deleted bool) {
	k := string(key)
	if v, ok := o.puts[k]; ok {
		return v, true, false
	}
	if _, ok := o.dels[k]; ok {
		return nil, false, true
	}
	return nil, false, false
}

// merge applies every write in src on top of o.
func (o *overlay) merge(src *overlay) {
	for k := range src.dels {
		o.del([]byte(k))
	}
	for k, v := range src.puts {
		o.put([]byte(k), v)
	}
}

func (o *overlay) empty() bool {
	return len(o.puts) == 0 && len(o.dels) == 0
}

// flush writes o to w in key order.
func (o *overlay) flush(w storage.BatchWriter) error {
	dels := make([]string, 0, len(o.dels))
	for k := range o.dels {
		dels = append(dels, k)
	}
	sort.Strings(dels)
	for _, k := range dels {
		if err := w.Delete([]byte(k)); err != nil {
			return err
		}
	}

	puts := make([]string, 0, len(o.puts))
	for k := range o.puts {
		puts = append(puts, k)
	}
	sort.Strings(puts)
	for _, k := range puts {
		if err := w.Put([]byte(k), o.puts[k]); err != nil {
			return err
		}
	}
	return nil
}

type entry struct {
	key   []byte
	value []byte
}

// view is the committed backend state seen through a stack of overlays.
// Writes go to the topmost layer.
type view struct {
	backend storage.Backend
	layers  []*overlay
}

func (v *view) get(ctx context.Context, key []byte) ([]byte, error) {
	for i := len(v.layers) - 1; i >= 0; i-- {
		value, found, deleted := v.layers[i].lookup(key)
		if found {
			return util.CopyBytes(value), nil
		}
		if deleted {
			return nil, storage.ErrKeyNotFound
		}
	}
	return v.backend.Get(ctx, key)
}

// has reports whether key exists, treating only ErrKeyNotFound as absence.
func (v *view) has(ctx context.Context, key []byte) (bool, error) {
	_, err := v.get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

func (v *view) scan(ctx context.Context, prefix []byte) ([]entry, error) {
	merged := make(map[string][]byte)
	err := v.backend.Scan(ctx, prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, layer := range v.layers {
		for k := range layer.dels {
			delete(merged, k)
		}
		for k, value := range layer.puts {
			if bytes.HasPrefix([]byte(k), prefix) {
				merged[k] = value
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entry, len(keys))
	for i, k := range keys {
		out[i] = entry{key: []byte(k), value: util.CopyBytes(merged[k])}
	}
	return out, nil
}

func (v *view) put(key, value []byte) {
	v.layers[len(v.layers)-1].put(key, value)
}

func (v *view) del(key []byte) {
	v.layers[len(v.layers)-1].del(key)
}
