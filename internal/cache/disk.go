package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const blobSuffix = ".cache"

// diskStore persists blobs as one file per entry under
// <root>/<bucket>/<key>.cache. File mtime doubles as the write timestamp, so
// expiry needs no sidecar metadata.
type diskStore struct {
	root string
}

func newDiskStore(root string) (*diskStore, error) {
	for _, b := range buckets {
		if err := os.MkdirAll(filepath.Join(root, string(b)), 0o755); err != nil {
			return nil, err
		}
	}
	return &diskStore{root: root}, nil
}

func (d *diskStore) path(bucket Bucket, key string) string {
	return filepath.Join(d.root, string(bucket), key+blobSuffix)
}

func (d *diskStore) Get(bucket Bucket, key string, ttl time.Duration) ([]byte, bool) {
	path := d.path(bucket, key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > ttl {
		_ = os.Remove(path)
		return nil, false
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set writes to a temp file in the bucket directory and renames it into
// place, so readers never observe a partial blob.
func (d *diskStore) Set(bucket Bucket, key string, payload []byte, _ time.Duration) error {
	dir := filepath.Join(d.root, string(bucket))
	tmp, err := os.CreateTemp(dir, key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), d.path(bucket, key))
}

func (d *diskStore) Delete(bucket Bucket, key string) {
	_ = os.Remove(d.path(bucket, key))
}

func (d *diskStore) SweepExpired(bucket Bucket, ttl time.Duration) int {
	dir := filepath.Join(d.root, string(bucket))
	items, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), blobSuffix) {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > ttl {
			if os.Remove(filepath.Join(dir, item.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// EnforceSizeCap deletes oldest blobs first until the store fits maxBytes.
func (d *diskStore) EnforceSizeCap(maxBytes int64) int {
	if maxBytes <= 0 {
		return 0
	}
	type blob struct {
		path  string
		mtime time.Time
		size  int64
	}
	var all []blob
	var total int64
	for _, b := range buckets {
		dir := filepath.Join(d.root, string(b))
		items, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, item := range items {
			if item.IsDir() || !strings.HasSuffix(item.Name(), blobSuffix) {
				continue
			}
			info, err := item.Info()
			if err != nil {
				continue
			}
			all = append(all, blob{
				path:  filepath.Join(dir, item.Name()),
				mtime: info.ModTime(),
				size:  info.Size(),
			})
			total += info.Size()
		}
	}
	if total <= maxBytes {
		return 0
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mtime.Before(all[j].mtime) })

	removed := 0
	for _, victim := range all {
		if total <= maxBytes {
			break
		}
		if os.Remove(victim.path) == nil {
			total -= victim.size
			removed++
		}
	}
	return removed
}

func (d *diskStore) Stats() BlobStats {
	var stats BlobStats
	for _, b := range buckets {
		dir := filepath.Join(d.root, string(b))
		items, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, item := range items {
			if item.IsDir() || !strings.HasSuffix(item.Name(), blobSuffix) {
				continue
			}
			info, err := item.Info()
			if err != nil {
				continue
			}
			stats.Files++
			stats.SizeBytes += info.Size()
		}
	}
	return stats
}

func (d *diskStore) ClearAll() int {
	removed := 0
	for _, b := range buckets {
		dir := filepath.Join(d.root, string(b))
		items, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, item := range items {
			if item.IsDir() || !strings.HasSuffix(item.Name(), blobSuffix) {
				continue
			}
			if os.Remove(filepath.Join(dir, item.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

func (d *diskStore) Close() error { return nil }
