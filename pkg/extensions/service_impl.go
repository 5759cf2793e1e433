package extensions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/content-extensions/internal/logger"
)

// service implements the Service interface
type service struct {
	store       Store
	descriptors *StoreDescriptorSource
	synth       *Synthesizer
	registry    *Registry
	applier     *Applier
	hooks       *Hooks
	eventSink   EventSink
	log         *logger.Logger
	concurrency int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the document store for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithSynthesizer shares a synthesizer (and its cache) with the service
func WithSynthesizer(synth *Synthesizer) Option {
	return func(s *service) {
		s.synth = synth
	}
}

// WithHooks merges additional lifecycle hooks into the service
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		if hooks == nil {
			return
		}
		for contentType, list := range hooks.BeforeContentCreate {
			for _, hook := range list {
				s.hooks.AddContentHook(contentType, hook)
			}
		}
		s.hooks.AfterContentCreate = append(s.hooks.AfterContentCreate, hooks.AfterContentCreate...)
		s.hooks.AfterExtensionsApplied = append(s.hooks.AfterExtensionsApplied, hooks.AfterExtensionsApplied...)
		s.hooks.OnError = append(s.hooks.OnError, hooks.OnError...)
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(l *logger.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithUpdateConcurrency bounds concurrent document updates per location
func WithUpdateConcurrency(n int) Option {
	return func(s *service) {
		s.concurrency = n
	}
}

// New creates a new service instance with the given options. The extension creation hook is
// registered for every content type ahead of any hooks supplied through WithHooks.
func New(options ...Option) (Service, error) {
	s := &service{
		hooks:       &Hooks{},
		log:         logger.NewNop(),
		concurrency: DefaultUpdateConcurrency,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.synth == nil {
		s.synth = NewSynthesizer()
	}

	s.descriptors = NewStoreDescriptorSource(s.store)
	s.registry = NewRegistry(s.store, s.descriptors)
	s.applier = NewApplier(s.store, s.descriptors, s.synth,
		WithApplierLogger(s.log),
		WithApplierConcurrency(s.concurrency))

	creation := NewCreationHook(s.registry, s.synth, s.log)
	extra := s.hooks.BeforeContentCreate
	s.hooks.BeforeContentCreate = nil
	creation.Register(s.hooks)
	for contentType, list := range extra {
		for _, hook := range list {
			s.hooks.AddContentHook(contentType, hook)
		}
	}

	return s, nil
}

// Extension propagation

func (s *service) Enable(ctx context.Context, courseID string, extensionIDs []string) error {
	return s.Apply(ctx, courseID, ActionEnable, extensionIDs)
}

func (s *service) Disable(ctx context.Context, courseID string, extensionIDs []string) error {
	return s.Apply(ctx, courseID, ActionDisable, extensionIDs)
}

func (s *service) Apply(ctx context.Context, courseID string, action Action, extensionIDs []string) error {
	applied, err := s.applier.Apply(ctx, courseID, action, extensionIDs)
	if err != nil {
		s.hooks.executeOnError(ctx, string(action), err)
		return err
	}

	if err := s.hooks.executeAfterExtensionsApplied(ctx, courseID, action, applied); err != nil {
		s.log.Warn("after-apply hook failed", "course_id", courseID, "error", err)
	}

	// Fire event
	if s.eventSink != nil {
		if err := s.eventSink.ExtensionsApplied(ctx, courseID, action, applied); err != nil {
			s.log.Warn("event sink failed", "event", "extensions_applied", "course_id", courseID, "error", err)
		}
	}
	return nil
}

// Registry and catalog reads

func (s *service) EnabledExtensions(ctx context.Context, courseID string) (map[string]EnabledExtension, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}
	return s.registry.Enabled(ctx, courseID)
}

func (s *service) ListExtensionTypes(ctx context.Context) ([]*Descriptor, error) {
	return s.descriptors.All(ctx)
}

// Content creation

func (s *service) CreateContent(ctx context.Context, contentType string, draft Document) (Document, error) {
	if !isContentType(contentType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, contentType)
	}
	if draft == nil {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}

	args, err := s.hooks.executeBeforeContentCreate(ctx, contentType, []Document{draft.Clone()})
	if err != nil {
		s.hooks.executeOnError(ctx, "create_content", err)
		return nil, err
	}
	if len(args) == 0 || args[0] == nil {
		return nil, fmt.Errorf("%w: create hooks dropped the content", ErrInvalidArgument)
	}

	doc := args[0]
	if doc.ID() == "" {
		doc[FieldID] = uuid.NewString()
	}
	if err := s.store.Create(ctx, contentType, doc); err != nil {
		err = storeError("create", contentType, err)
		s.hooks.executeOnError(ctx, "create_content", err)
		return nil, err
	}

	if err := s.hooks.executeAfterContentCreate(ctx, contentType, doc); err != nil {
		s.log.Warn("after-create hook failed", "content_type", contentType, "id", doc.ID(), "error", err)
	}

	// Fire event
	if s.eventSink != nil {
		if err := s.eventSink.ContentCreated(ctx, contentType, doc); err != nil {
			s.log.Warn("event sink failed", "event", "content_created", "id", doc.ID(), "error", err)
		}
	}
	return doc, nil
}

func isContentType(contentType string) bool {
	for _, t := range ContentTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
