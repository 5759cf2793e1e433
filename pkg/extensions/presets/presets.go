// Package presets builds ready-to-use extension services for local development and tests.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	fsstorage "github.com/tendant/content-extensions/pkg/extensions/storage/fs"
	memorystorage "github.com/tendant/content-extensions/pkg/extensions/storage/memory"
	"github.com/tendant/content-extensions/pkg/extensions/store/memory"
)

// FixtureCourseID is the course seeded by WithTestFixtures.
const FixtureCourseID = "course-1"

// FixtureManifest is the extension manifest installed by WithTestFixtures.
const FixtureManifest = `name: adapt-contrib-pageLevelProgress
extension: pageLevelProgress
version: 1.0.0
targetAttribute: _pageLevelProgress
properties:
  pluginLocations:
    properties:
      course:
        properties:
          _isEnabled:
            type: boolean
            default: true
      contentobject:
        properties:
          _isEnabled:
            type: boolean
            default: true
      component:
        properties:
          _isEnabled:
            type: boolean
            default: true
          _isCompletionIndicatorEnabled:
            type: boolean
            default: false
`

// Environment bundles a service with the collaborators behind it.
type Environment struct {
	Service   extensions.Service
	Store     *memory.Store
	Manifests extensions.BlobStore
	Catalog   *catalog.Catalog
}

// NewDevelopment creates a service for local development: an in-memory document store and
// manifests read from a directory (./dev-manifests by default), synced once on startup.
//
// The returned cleanup function removes the manifest directory.
func NewDevelopment(opts ...DevelopmentOption) (*Environment, func(), error) {
	cfg := &devConfig{
		manifestDir: "./dev-manifests",
		log:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	blobs, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.manifestDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create manifest storage: %w", err)
	}

	env, err := build(blobs, cfg.log)
	if err != nil {
		return nil, nil, err
	}
	if _, err := env.Catalog.Sync(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to sync manifests: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.manifestDir)
	}
	return env, cleanup, nil
}

// NewTesting creates an isolated in-memory service for a test.
func NewTesting(t *testing.T, opts ...TestingOption) *Environment {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	env, err := build(memorystorage.New(), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	if cfg.fixtures {
		if err := seedFixtures(context.Background(), env); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return env
}

func build(blobs extensions.BlobStore, log *logger.Logger) (*Environment, error) {
	store := memory.New()
	svc, err := extensions.New(
		extensions.WithStore(store),
		extensions.WithLogger(log),
		extensions.WithEventSink(extensions.NewNoopEventSink()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return &Environment{
		Service:   svc,
		Store:     store,
		Manifests: blobs,
		Catalog:   catalog.New(blobs, store, catalog.WithLogger(log)),
	}, nil
}

// seedFixtures creates a course with a config, one page and two components, and installs
// FixtureManifest.
func seedFixtures(ctx context.Context, env *Environment) error {
	docs := []struct {
		docType string
		doc     extensions.Document
	}{
		{extensions.TypeCourse, extensions.Document{"_id": FixtureCourseID, "title": "Fixture course"}},
		{extensions.TypeConfig, extensions.Document{"_id": FixtureCourseID + "-config", "_courseId": FixtureCourseID}},
		{extensions.TypeContentObject, extensions.Document{"_id": "page-1", "_courseId": FixtureCourseID, "title": "Page"}},
		{extensions.TypeComponent, extensions.Document{"_id": "component-1", "_courseId": FixtureCourseID}},
		{extensions.TypeComponent, extensions.Document{"_id": "component-2", "_courseId": FixtureCourseID}},
	}
	for _, d := range docs {
		if err := env.Store.Create(ctx, d.docType, d.doc); err != nil {
			return err
		}
	}
	_, err := env.Catalog.Install(ctx, []byte(FixtureManifest))
	return err
}

type devConfig struct {
	manifestDir string
	log         *logger.Logger
}

type testConfig struct {
	fixtures bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevManifests sets the directory manifests are read from
func WithDevManifests(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.manifestDir = dir
	}
}

// WithDevLogger sets the logger shared by the service and catalog
func WithDevLogger(l *logger.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		if l != nil {
			cfg.log = l
		}
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds FixtureCourseID and installs FixtureManifest
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}
