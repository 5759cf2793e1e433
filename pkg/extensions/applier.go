package extensions

import (
	"context"
	"fmt"

	"github.com/tendant/content-extensions/internal/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultUpdateConcurrency bounds the concurrent document updates within one location.
const DefaultUpdateConcurrency = 16

// Applier adds or removes extension data across a course's content documents and keeps the
// course registry in step.
//
// Extensions run in the order requested and locations in declaration order, one at a time.
// Documents within a location are updated concurrently. A failure aborts the run; updates
// already written are not rolled back, and re-running the same action converges.
type Applier struct {
	store       Store
	descriptors DescriptorSource
	synth       *Synthesizer
	walker      *Walker
	registry    *Registry
	concurrency int
	log         *logger.Logger
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithApplierLogger sets the logger.
func WithApplierLogger(l *logger.Logger) ApplierOption {
	return func(a *Applier) {
		if l != nil {
			a.log = l
		}
	}
}

// WithApplierConcurrency sets the per-location update limit. Values below 1 are ignored.
func WithApplierConcurrency(n int) ApplierOption {
	return func(a *Applier) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// NewApplier creates an applier.
func NewApplier(store Store, descriptors DescriptorSource, synth *Synthesizer, opts ...ApplierOption) *Applier {
	a := &Applier{
		store:       store,
		descriptors: descriptors,
		synth:       synth,
		walker:      NewWalker(store),
		registry:    NewRegistry(store, descriptors),
		concurrency: DefaultUpdateConcurrency,
		log:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply enables or disables the extensions ids on courseID and returns the descriptors that
// were applied. Ids with no installed extension type are skipped.
func (a *Applier) Apply(ctx context.Context, courseID string, action Action, ids []string) ([]*Descriptor, error) {
	if err := validateApply(courseID, action, ids); err != nil {
		return nil, &ApplyError{CourseID: courseID, Action: action, Err: err}
	}

	courses, err := a.store.Retrieve(ctx, TypeCourse, Criteria{FieldID: courseID}, FieldID)
	if err != nil {
		return nil, &ApplyError{CourseID: courseID, Action: action, Err: storeError("retrieve", TypeCourse, err)}
	}
	if len(courses) == 0 {
		return nil, &ApplyError{CourseID: courseID, Action: action, Err: ErrCourseNotFound}
	}
	// Content must not gain extension data the registry cannot record.
	_, hasConfig, err := a.registry.ConfigDocument(ctx, courseID)
	if err != nil {
		return nil, &ApplyError{CourseID: courseID, Action: action, Location: TypeConfig, Err: err}
	}
	if !hasConfig {
		return nil, &ApplyError{CourseID: courseID, Action: action, Location: TypeConfig, Err: ErrConfigNotFound}
	}

	ids = uniqueIDs(ids)
	found, err := a.descriptors.Descriptors(ctx, ids)
	if err != nil {
		return nil, &ApplyError{CourseID: courseID, Action: action, Err: err}
	}
	descriptors := orderByIDs(found, ids)
	if len(descriptors) < len(ids) {
		a.log.Warn("skipping unknown extension types",
			"course_id", courseID, "requested", len(ids), "found", len(descriptors))
	}

	a.log.Info("applying extensions", "course_id", courseID, "action", string(action), "count", len(descriptors))
	for _, d := range descriptors {
		if err := a.applyDescriptor(ctx, courseID, action, d); err != nil {
			return nil, err
		}
	}
	a.log.Info("applied extensions", "course_id", courseID, "action", string(action))
	return descriptors, nil
}

func (a *Applier) applyDescriptor(ctx context.Context, courseID string, action Action, d *Descriptor) error {
	registryWritten := false
	for _, loc := range d.Locations {
		if err := ctx.Err(); err != nil {
			return &ApplyError{CourseID: courseID, Action: action, Extension: d.Key(), Location: loc.Key, Err: err}
		}
		n, err := a.applyLocation(ctx, courseID, action, d, loc.Key)
		if err != nil {
			return err
		}
		if loc.Key == TypeConfig && n > 0 {
			registryWritten = true
		}
	}
	if registryWritten {
		return nil
	}
	return a.updateRegistry(ctx, courseID, action, d)
}

// applyLocation rewrites every document of location and returns how many were updated.
func (a *Applier) applyLocation(ctx context.Context, courseID string, action Action, d *Descriptor, location string) (int, error) {
	docs, err := a.walker.Documents(ctx, courseID, location)
	if err != nil {
		return 0, &ApplyError{CourseID: courseID, Action: action, Extension: d.Key(), Location: location, Err: err}
	}

	payload, hasPayload := a.synth.SynthesizeLocation(d, location)
	isConfig := location == TypeConfig

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			delta := documentDelta(doc, action, d, payload, hasPayload, isConfig)
			if err := a.store.Update(gctx, location, Criteria{FieldID: doc.ID()}, delta); err != nil {
				return &ApplyError{
					CourseID:   courseID,
					Action:     action,
					Extension:  d.Key(),
					Location:   location,
					DocumentID: doc.ID(),
					Err:        storeError("update", location, err),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	a.log.Debug("location updated",
		"course_id", courseID, "extension", d.Key(), "location", location, "documents", len(docs))
	return len(docs), nil
}

// updateRegistry records the change on the config document when no config location did.
func (a *Applier) updateRegistry(ctx context.Context, courseID string, action Action, d *Descriptor) error {
	doc, found, err := a.registry.ConfigDocument(ctx, courseID)
	if err != nil {
		return &ApplyError{CourseID: courseID, Action: action, Extension: d.Key(), Location: TypeConfig, Err: err}
	}
	if !found {
		return &ApplyError{CourseID: courseID, Action: action, Extension: d.Key(), Location: TypeConfig, Err: ErrConfigNotFound}
	}

	delta := Document{FieldEnabledExtensions: registryDelta(doc, action, d)}
	if err := a.store.Update(ctx, TypeConfig, Criteria{FieldID: doc.ID()}, delta); err != nil {
		return &ApplyError{
			CourseID:   courseID,
			Action:     action,
			Extension:  d.Key(),
			Location:   TypeConfig,
			DocumentID: doc.ID(),
			Err:        storeError("update", TypeConfig, err),
		}
	}
	return nil
}

// documentDelta computes the partial update for one document. Enabling overwrites the
// extension's attribute; disabling removes it when the schema yields any data at all.
func documentDelta(doc Document, action Action, d *Descriptor, payload Payload, hasPayload, isConfig bool) Document {
	ext := doc.Extensions()
	switch action {
	case ActionEnable:
		if hasPayload {
			ext[d.Attribute()] = cloneObject(payload)
		}
	case ActionDisable:
		if hasPayload {
			delete(ext, d.Attribute())
		}
	}

	delta := Document{FieldExtensions: ext}
	if isConfig {
		delta[FieldEnabledExtensions] = registryDelta(doc, action, d)
	}
	return delta
}

func registryDelta(doc Document, action Action, d *Descriptor) map[string]interface{} {
	if action == ActionEnable {
		return WithEntry(doc.EnabledExtensions(), d.Key(), d.EnabledEntry())
	}
	return WithoutEntry(doc.EnabledExtensions(), d.Key())
}

func validateApply(courseID string, action Action, ids []string) error {
	if courseID == "" {
		return fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}
	if !action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, action)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: extensions should be a non-empty list of ids", ErrInvalidArgument)
	}
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: extension id cannot be empty", ErrInvalidArgument)
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
