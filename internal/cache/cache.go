// Package cache holds the decrypted vault in memory and answers lookups.
// The snapshot is replaced wholesale on reload; readers always observe
// either the old vault or the new one, never a mix.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// DefaultField is used by Lookup when the caller omits the field name.
const DefaultField = "password"

// retrieveCommand is the shell command template emitted by Suggest.
const retrieveCommand = "bw-get %s %s"

// NotFoundError reports a lookup for an entry name not in the vault.
type NotFoundError struct {
	Item string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.Item)
}

// FieldNotFoundError reports a missing field on an existing entry. Available
// enumerates the entry's real field names so the caller can self-correct.
type FieldNotFoundError struct {
	Item      string
	Field     string
	Available []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field not found: %s (available: %s)", e.Field, strings.Join(e.Available, ", "))
}

// Cache is the swappable vault snapshot. The zero value is unusable; use New.
type Cache struct {
	mu    sync.RWMutex
	vault Vault
}

// New returns a cache holding an empty vault.
func New() *Cache {
	return &Cache{vault: Vault{}}
}

// Replace swaps in a new snapshot. The swap is atomic with respect to all
// readers; the previous snapshot is left untouched for in-flight requests.
func (c *Cache) Replace(v Vault) {
	if v == nil {
		v = Vault{}
	}
	c.mu.Lock()
	c.vault = v
	c.mu.Unlock()
}

// Lookup returns the value of one field on one entry. An empty field name
// defaults to "password". The item name is NFC-normalized to match the
// normalization applied when the vault was built.
func (c *Cache) Lookup(item, field string) (string, error) {
	item = norm.NFC.String(item)
	if field == "" {
		field = DefaultField
	}

	c.mu.RLock()
	entry, ok := c.vault[item]
	c.mu.RUnlock()
	if !ok {
		return "", &NotFoundError{Item: item}
	}

	value, ok := entry[field]
	if !ok {
		return "", &FieldNotFoundError{Item: item, Field: field, Available: fieldNames(entry)}
	}
	return value, nil
}

// Suggest maps each field of the named entry to a suggested environment
// variable name paired with the command that retrieves the value.
func (c *Cache) Suggest(item string) (map[string]string, error) {
	item = norm.NFC.String(item)

	c.mu.RLock()
	entry, ok := c.vault[item]
	c.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Item: item}
	}

	suggestions := make(map[string]string, len(entry))
	for field := range entry {
		envVar := EnvName(item) + "_" + EnvName(field)
		suggestions[envVar] = fmt.Sprintf(retrieveCommand, item, field)
	}
	return suggestions, nil
}

// Names returns all entry names in ascending lexicographic order.
// The result is never nil.
func (c *Cache) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.vault))
	for name := range c.vault {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len reports the number of entries in the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vault)
}

func fieldNames(e Entry) []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
