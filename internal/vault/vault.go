// Package vault implements the sealed note vault: a title to body mapping
// that is only ever persisted as one authenticated-encryption blob.
//
// Every operation decrypts the whole mapping, works on it in memory and, for
// writes, re-encrypts and saves all of it under a fresh nonce.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kitvault/kitvault/internal/crypto"
	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/storage"
)

// Delimiter separates the title from the body in a note command argument.
const Delimiter = " :: "

// Replies returned by the command-level operations.
const (
	UsageNote  = "Usage: note Title :: Body"
	NoteSaved  = "Note saved encrypted."
	NotFound   = "Not found."
	EmptyVault = "Empty vault."
	NoteRemove = "Note removed."
)

var (
	// ErrNoVault means nothing has been stored yet.
	ErrNoVault = errors.New("no vault")
	// ErrCorrupted means a stored vault exists but cannot be opened with the
	// configured key, or its plaintext is not a JSON object of strings.
	ErrCorrupted = errors.New("vault corrupted or key mismatch")
)

// Vault is the sealed note store
type Vault struct {
	mu     sync.Mutex
	store  storage.BlobStore
	sealer *crypto.Sealer
	log    *logger.Logger
}

// New creates a vault over store, sealing with sealer
func New(store storage.BlobStore, sealer *crypto.Sealer, log *logger.Logger) *Vault {
	if log == nil {
		log = logger.Nop()
	}
	return &Vault{
		store:  store,
		sealer: sealer,
		log:    log,
	}
}

// SplitNote splits a note argument on the first delimiter
func SplitNote(arg string) (title, body string, ok bool) {
	return strings.Cut(arg, Delimiter)
}

// Write stores a "Title :: Body" argument. A missing delimiter is a usage
// error reported as UsageNote; nothing is loaded or saved in that case.
func (v *Vault) Write(ctx context.Context, arg string) (string, error) {
	title, body, ok := SplitNote(arg)
	if !ok {
		return UsageNote, nil
	}
	if err := v.Put(ctx, title, body); err != nil {
		return "", err
	}
	return NoteSaved, nil
}

// Read returns the body stored under title, or NotFound
func (v *Vault) Read(ctx context.Context, title string) (string, error) {
	body, ok, err := v.Get(ctx, title)
	if err != nil {
		return "", err
	}
	if !ok {
		return NotFound, nil
	}
	return body, nil
}

// List returns the titles joined by ", ", or EmptyVault
func (v *Vault) List(ctx context.Context) (string, error) {
	titles, err := v.Titles(ctx)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return EmptyVault, nil
	}
	return strings.Join(titles, ", "), nil
}

// Delete removes the note called title
func (v *Vault) Delete(ctx context.Context, title string) (string, error) {
	removed, err := v.Remove(ctx, title)
	if err != nil {
		return "", err
	}
	if !removed {
		return NotFound, nil
	}
	return NoteRemove, nil
}

// Put inserts or overwrites a note and persists the whole vault
func (v *Vault) Put(ctx context.Context, title, body string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	notes := v.entries(ctx)
	notes[title] = body

	if err := v.save(ctx, notes); err != nil {
		return err
	}
	v.log.Debug().Int("notes", len(notes)).Msg("note saved")
	return nil
}

// Get looks up a note
func (v *Vault) Get(ctx context.Context, title string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	body, ok := v.entries(ctx)[title]
	return body, ok, nil
}

// Titles returns all note titles in ascending order
func (v *Vault) Titles(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	notes := v.entries(ctx)
	titles := make([]string, 0, len(notes))
	for title := range notes {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles, nil
}

// Remove deletes a note. It reports false without saving when the title is
// not present.
func (v *Vault) Remove(ctx context.Context, title string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	notes := v.entries(ctx)
	if _, ok := notes[title]; !ok {
		return false, nil
	}
	delete(notes, title)

	if err := v.save(ctx, notes); err != nil {
		return false, err
	}
	return true, nil
}

// Entries returns the decrypted mapping. Any load failure yields an empty
// mapping; use Load to tell "no vault" from "corrupted vault".
func (v *Vault) Entries(ctx context.Context) map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.entries(ctx)
}

// Load returns the decrypted mapping, ErrNoVault when nothing is stored, or
// an error wrapping ErrCorrupted when the stored blob does not open.
func (v *Vault) Load(ctx context.Context) (map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load(ctx)
}

// Export returns the sealed blob exactly as stored
func (v *Vault) Export(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := v.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoVault
		}
		return nil, fmt.Errorf("failed to load vault: %w", err)
	}
	return blob, nil
}

// Restore replaces the stored vault with blob after checking that it opens
// with the configured key. The current vault is left alone otherwise.
func (v *Vault) Restore(ctx context.Context, blob []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	notes, err := v.open(blob)
	if err != nil {
		return 0, err
	}
	if err := v.store.Save(ctx, blob); err != nil {
		return 0, fmt.Errorf("failed to save vault: %w", err)
	}
	return len(notes), nil
}

func (v *Vault) entries(ctx context.Context) map[string]string {
	notes, err := v.load(ctx)
	switch {
	case err == nil:
		return notes
	case errors.Is(err, ErrNoVault):
		v.log.Debug().Msg("no vault yet, starting empty")
	default:
		v.log.Warn().Err(err).Msg("vault could not be opened, treating it as empty")
	}
	return make(map[string]string)
}

func (v *Vault) load(ctx context.Context) (map[string]string, error) {
	blob, err := v.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoVault
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return v.open(blob)
}

func (v *Vault) open(blob []byte) (map[string]string, error) {
	plaintext, err := v.sealer.Open(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	defer crypto.Zeroize(plaintext)

	notes, err := FromJSON(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return notes, nil
}

func (v *Vault) save(ctx context.Context, notes map[string]string) error {
	plaintext, err := ToJSON(notes)
	if err != nil {
		return fmt.Errorf("failed to serialize vault: %w", err)
	}
	defer crypto.Zeroize(plaintext)

	blob, err := v.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt vault: %w", err)
	}

	if err := v.store.Save(ctx, blob); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return nil
}

// ToJSON serializes the mapping
func ToJSON(notes map[string]string) ([]byte, error) {
	return json.Marshal(notes)
}

// FromJSON deserializes the mapping. A JSON null decodes to an empty map.
func FromJSON(data []byte) (map[string]string, error) {
	var notes map[string]string
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = make(map[string]string)
	}
	return notes, nil
}
