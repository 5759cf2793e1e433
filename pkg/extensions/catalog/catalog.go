// Package catalog installs extension types from manifests kept in a blob store.
//
// Manifests are YAML or JSON files describing an extension: its name, registry key
// (extension), version, targetAttribute and the per-location schemas under
// properties.pluginLocations. A sync installs manifests that are new and upgrades installed
// extension types whose manifest carries a strictly greater semantic version.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions"
)

// Outcome of installing one manifest.
type Outcome string

const (
	OutcomeInstalled Outcome = "installed"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// InstallResult describes what Install did with a manifest.
type InstallResult struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Outcome  Outcome  `json:"outcome"`
	Warnings []string `json:"warnings,omitempty"`
}

// Rejected is a manifest that could not be installed.
type Rejected struct {
	Key    string  `json:"key"`
	Reason string  `json:"reason"`
	Issues []Issue `json:"issues,omitempty"`
}

// SyncReport summarizes one Sync run.
type SyncReport struct {
	Installed []InstallResult `json:"installed"`
	Updated   []InstallResult `json:"updated"`
	Unchanged []InstallResult `json:"unchanged"`
	Rejected  []Rejected      `json:"rejected"`
}

// Catalog reads manifests from a BlobStore and stores extensiontype documents.
type Catalog struct {
	blobs  extensions.BlobStore
	store  extensions.Store
	prefix string
	log    *logger.Logger
	newID  func() string
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPrefix limits Sync to manifest keys under prefix.
func WithPrefix(prefix string) Option {
	return func(c *Catalog) {
		c.prefix = prefix
	}
}

// WithLogger sets the catalog logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a catalog over blobs and store.
func New(blobs extensions.BlobStore, store extensions.Store, opts ...Option) *Catalog {
	c := &Catalog{
		blobs: blobs,
		store: store,
		log:   logger.NewNop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsManifestKey reports whether key names a manifest file.
func IsManifestKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Sync installs or upgrades every manifest in the blob store. Invalid manifests are
// reported and skipped; only blob listing and store failures abort the run.
func (c *Catalog) Sync(ctx context.Context) (*SyncReport, error) {
	keys, err := c.blobs.List(ctx, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}

	report := &SyncReport{
		Installed: []InstallResult{},
		Updated:   []InstallResult{},
		Unchanged: []InstallResult{},
		Rejected:  []Rejected{},
	}
	for _, key := range keys {
		if !IsManifestKey(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := c.read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", key, err)
		}

		result, err := c.Install(ctx, data)
		if err != nil {
			var invalid *InvalidManifestError
			if !errors.As(err, &invalid) {
				return nil, fmt.Errorf("install manifest %s: %w", key, err)
			}
			c.log.Warn("rejected extension manifest", "key", key, "error", err)
			report.Rejected = append(report.Rejected, Rejected{Key: key, Reason: err.Error(), Issues: invalid.Issues})
			continue
		}

		switch result.Outcome {
		case OutcomeInstalled:
			report.Installed = append(report.Installed, *result)
		case OutcomeUpdated:
			report.Updated = append(report.Updated, *result)
		default:
			report.Unchanged = append(report.Unchanged, *result)
		}
	}

	c.log.Info("extension catalog synced",
		"installed", len(report.Installed),
		"updated", len(report.Updated),
		"unchanged", len(report.Unchanged),
		"rejected", len(report.Rejected))
	return report, nil
}

func (c *Catalog) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Install stores one manifest. An installed extension type with the same name is replaced
// only when the manifest version is greater, keeping its _id.
func (c *Catalog) Install(ctx context.Context, data []byte) (*InstallResult, error) {
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	result := &InstallResult{
		Name:     m.Name,
		Version:  m.Version.Original(),
		Warnings: compileLocations(m),
	}
	for _, w := range result.Warnings {
		c.log.Warn("extension location schema did not compile", "name", m.Name, "warning", w)
	}

	existing, err := c.store.Retrieve(ctx, extensions.TypeExtensionType, extensions.Criteria{"name": m.Name},
		extensions.FieldID, "version")
	if err != nil {
		return nil, fmt.Errorf("lookup extension type %s: %w", m.Name, err)
	}

	if len(existing) == 0 {
		result.ID = c.newID()
		if err := c.store.Create(ctx, extensions.TypeExtensionType, m.Document(result.ID)); err != nil {
			return nil, fmt.Errorf("create extension type %s: %w", m.Name, err)
		}
		result.Outcome = OutcomeInstalled
		c.log.Info("installed extension type", "name", m.Name, "version", result.Version, "id", result.ID)
		return result, nil
	}

	current := existing[0]
	result.ID = current.ID()
	installed, _ := current["version"].(string)
	if v, err := parseSemver(installed); err == nil && !m.Version.GreaterThan(v) {
		result.Outcome = OutcomeUnchanged
		c.log.Debug("extension type up to date", "name", m.Name, "installed", installed, "manifest", result.Version)
		return result, nil
	}

	if err := c.store.Update(ctx, extensions.TypeExtensionType, extensions.Criteria{extensions.FieldID: result.ID},
		m.Document(result.ID)); err != nil {
		return nil, fmt.Errorf("update extension type %s: %w", m.Name, err)
	}
	result.Outcome = OutcomeUpdated
	c.log.Info("updated extension type", "name", m.Name, "from", installed, "to", result.Version)
	return result, nil
}
