package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Identity links a normalized phone number to a Telegram account.
type Identity struct {
	Phone      string `json:"phone"`
	TelegramID int64  `json:"telegram_id"`
	FirstName  string `json:"first_name,omitempty"`
}

// Directory is the durable phone → Telegram identity mapping. Entries are
// kept in registration order so the first registered identity is well
// defined (it becomes the storage sink when none is configured). Every
// successful Register rewrites the whole backing file atomically.
type Directory struct {
	mu      sync.Mutex
	path    string
	entries []Identity
	byPhone map[string]int
}

// Open loads the directory from path; a missing file yields an empty
// directory.
func Open(path string) (*Directory, error) {
	d := &Directory{path: path, byPhone: make(map[string]int)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read phone directory: %w", err)
	}
	if err := json.Unmarshal(raw, &d.entries); err != nil {
		return nil, fmt.Errorf("decode phone directory %s: %w", path, err)
	}
	for i, e := range d.entries {
		d.byPhone[e.Phone] = i
	}
	return d, nil
}

// Resolve looks up the identity linked to phone (any textual form).
func (d *Directory) Resolve(phone string) (Identity, bool) {
	key := NormalizePhone(phone)
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.byPhone[key]
	if !ok {
		return Identity{}, false
	}
	return d.entries[i], true
}

// Register upserts the identity for phone and persists the full directory.
// A repeat registration keeps the entry's position and updates the Telegram
// id and name.
func (d *Directory) Register(phone string, telegramID int64, firstName string) (Identity, error) {
	key := NormalizePhone(phone)
	entry := Identity{Phone: key, TelegramID: telegramID, FirstName: firstName}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.byPhone[key]; ok {
		d.entries[i] = entry
	} else {
		d.byPhone[key] = len(d.entries)
		d.entries = append(d.entries, entry)
	}
	if err := d.saveLocked(); err != nil {
		return Identity{}, err
	}
	return entry, nil
}

// Identities returns a copy of all entries in registration order.
func (d *Directory) Identities() []Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Identity, len(d.entries))
	copy(out, d.entries)
	return out
}

// First returns the earliest registered identity, if any.
func (d *Directory) First() (Identity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == 0 {
		return Identity{}, false
	}
	return d.entries[0], true
}

// Len reports the number of linked identities.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// saveLocked rewrites the backing file via a temp file and rename so a crash
// mid-write never leaves a truncated directory.
func (d *Directory) saveLocked() error {
	raw, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode phone directory: %w", err)
	}
	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".phone_directory-*.json")
	if err != nil {
		return fmt.Errorf("create temp directory file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write phone directory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close phone directory: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace phone directory: %w", err)
	}
	return nil
}

// NormalizePhone canonicalizes a phone number so every entry point (contact
// registration, code request, code verification) keys on the same form.
// Numbers without a country calling code are assumed domestic (+91).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	p := b.String()

	switch {
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, "91") && len(p) > 10:
		return "+" + p
	case len(p) == 10:
		return "+91" + p
	case len(p) > 10:
		return "+91" + p[len(p)-10:]
	default:
		return "+" + p
	}
}
