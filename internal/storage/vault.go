package storage

import (
	"fmt"
	"path"
	"time"

	"github.com/aeshef/knowledge-bot/internal/checksum"
	"github.com/aeshef/knowledge-bot/internal/slug"
)

// Vault layers the note and raw-file placement rules over a Provider:
// notes land under per-type folders, raw inputs and attachments under
// year/month shards named by content hash.
type Vault struct {
	fs        Provider
	notesDir  string
	rawDir    string
	attachDir string
	now       func() time.Time
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithNotesDir sets the subdirectory holding the typed note folders.
func WithNotesDir(dir string) VaultOption {
	return func(v *Vault) { v.notesDir = dir }
}

// WithRawDir sets the subdirectory for raw input files.
func WithRawDir(dir string) VaultOption {
	return func(v *Vault) { v.rawDir = dir }
}

// WithAttachmentsDir sets the subdirectory for note attachments.
func WithAttachmentsDir(dir string) VaultOption {
	return func(v *Vault) { v.attachDir = dir }
}

func withClock(now func() time.Time) VaultOption {
	return func(v *Vault) { v.now = now }
}

// NewVault creates a Vault over fs.
func NewVault(fs Provider, opts ...VaultOption) *Vault {
	v := &Vault{
		fs:        fs,
		rawDir:    "_raw",
		attachDir: "_attachments",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FS returns the underlying provider.
func (v *Vault) FS() Provider { return v.fs }

// NotePath returns the vault-relative path for a note slug in a type folder.
func (v *Vault) NotePath(typeDir, slugName string) string {
	return path.Join(v.notesDir, typeDir, slugName+".md")
}

// UniqueNotePath picks the first free note path for a title slug, suffixing
// _1, _2, ... on collision.
func (v *Vault) UniqueNotePath(typeDir, title string) (string, error) {
	base := slug.FileName(title)
	candidate := v.NotePath(typeDir, base)
	for i := 0; ; i++ {
		if i > 0 {
			candidate = v.NotePath(typeDir, fmt.Sprintf("%s_%d", base, i))
		}
		exists, err := v.fs.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// WriteNote writes a rendered note under the type folder without clobbering
// existing notes, and returns its vault-relative path.
func (v *Vault) WriteNote(typeDir, title, rendered string) (string, error) {
	notePath, err := v.UniqueNotePath(typeDir, title)
	if err != nil {
		return "", err
	}
	if err := v.fs.Write(notePath, []byte(rendered)); err != nil {
		return "", err
	}
	return notePath, nil
}

// SaveRaw stores a raw input file under rawDir/YYYY/MM/<hash8>_<name> and
// returns its vault-relative path. The hash prefix keeps re-sent files from
// colliding while keeping the original name readable.
func (v *Vault) SaveRaw(name string, content []byte) (string, error) {
	return v.saveSharded(v.rawDir, name, content)
}

// SaveAttachment stores an attachment under the attachments shard.
func (v *Vault) SaveAttachment(name string, content []byte) (string, error) {
	return v.saveSharded(v.attachDir, name, content)
}

func (v *Vault) saveSharded(root, name string, content []byte) (string, error) {
	t := v.now()
	// Keep the original file name (extension included) behind the hash
	// prefix; only strip any directory component.
	rel := path.Join(root, t.Format("2006"), t.Format("01"),
		checksum.Short8(content)+"_"+path.Base(name))
	if err := v.fs.Write(rel, content); err != nil {
		return "", err
	}
	return rel, nil
}
