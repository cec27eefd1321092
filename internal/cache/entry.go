package cache

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/bwcached/internal/bitwarden"
)

// Entry is one credential record: field name -> field value.
type Entry map[string]string

// Vault is a point-in-time snapshot of all entries, keyed by entry name.
// A Vault is never mutated after Build; the cache swaps whole snapshots.
type Vault map[string]Entry

// Parse flattens one provider item into an entry. Standard login sub-fields
// (username, password, first uri) and notes are collected first; custom
// fields fill in only names not already taken, so a custom field can never
// shadow a standard one. Items without a name are dropped ("" is returned).
func Parse(item bitwarden.Item) (string, Entry) {
	name := norm.NFC.String(item.Name)
	if name == "" {
		return "", nil
	}

	fields := Entry{}
	if login := item.Login; login != nil {
		if login.Username != "" {
			fields["username"] = login.Username
		}
		if login.Password != "" {
			fields["password"] = login.Password
		}
		if len(login.URIs) > 0 && login.URIs[0].URI != "" {
			fields["uri"] = login.URIs[0].URI
		}
	}
	if item.Notes != "" {
		fields["notes"] = item.Notes
	}
	for _, f := range item.Fields {
		if f.Name == "" || f.Value == nil {
			continue
		}
		if _, taken := fields[f.Name]; taken {
			continue
		}
		fields[f.Name] = *f.Value
	}
	return name, fields
}

// Build assembles a vault snapshot from raw provider items.
// Duplicate names resolve last-write-wins.
func Build(items []bitwarden.Item) Vault {
	v := make(Vault, len(items))
	for _, item := range items {
		name, fields := Parse(item)
		if name == "" {
			continue
		}
		v[name] = fields
	}
	return v
}

// EnvName derives a shell-safe environment variable token from a name:
// uppercase, with each '-' and ' ' replaced by '_'. No other characters
// are altered.
func EnvName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
