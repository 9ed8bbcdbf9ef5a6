package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// KeyPrefix namespaces every key a session writes.
const KeyPrefix = "strategia_"

// Cache is a durable key-value map persisted as one JSON file. It stands in
// for a device's local storage: reads of missing or corrupt entries report
// false and write failures are logged, never returned.
type Cache struct {
	mu       sync.RWMutex
	filePath string
	entries  map[string]json.RawMessage
}

// OpenCache loads dataDir/filename, creating the directory if needed. A
// missing file yields an empty cache.
func OpenCache(dataDir, filename string) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	c := &Cache{
		filePath: filepath.Join(dataDir, filename),
		entries:  make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, &c.entries); err != nil {
			log.Printf("[cache] discarding unreadable file=%s error=%v", c.filePath, err)
			c.entries = make(map[string]json.RawMessage)
		}
	}
	return c, nil
}

// Get decodes key into v and reports whether it was present and readable.
func (c *Cache) Get(key string, v interface{}) bool {
	c.mu.RLock()
	raw, ok := c.entries[KeyPrefix+key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("[cache] decode key=%s error=%v", key, err)
		return false
	}
	return true
}

func (c *Cache) Set(key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[cache] encode key=%s error=%v", key, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[KeyPrefix+key] = raw
	c.saveLocked()
}

func (c *Cache) Delete(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, KeyPrefix+k)
	}
	c.saveLocked()
}

// Keys lists the stored keys without the prefix.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		if strings.HasPrefix(k, KeyPrefix) {
			out = append(out, strings.TrimPrefix(k, KeyPrefix))
		}
	}
	sort.Strings(out)
	return out
}

// Remove deletes the backing file.
func (c *Cache) Remove() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]json.RawMessage)
	if err := os.Remove(c.filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// saveLocked writes a temp file and renames it over the old one.
func (c *Cache) saveLocked() {
	tempFile := c.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		log.Printf("[cache] write file=%s error=%v", c.filePath, err)
		return
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c.entries); err != nil {
		file.Close()
		os.Remove(tempFile)
		log.Printf("[cache] write file=%s error=%v", c.filePath, err)
		return
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		log.Printf("[cache] write file=%s error=%v", c.filePath, err)
		return
	}
	if err := os.Rename(tempFile, c.filePath); err != nil {
		log.Printf("[cache] write file=%s error=%v", c.filePath, err)
	}
}
