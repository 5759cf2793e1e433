package extensions

import (
	"context"
)

// Hook system allows the content layer to run extra steps around content creation and
// extension changes without modifying the service.

// Hooks defines all available lifecycle hooks
type Hooks struct {
	// Content lifecycle hooks, keyed by content type
	BeforeContentCreate map[string][]BeforeContentCreateHook
	AfterContentCreate  []AfterContentCreateHook

	// Extension hooks
	AfterExtensionsApplied []AfterExtensionsAppliedHook

	// Error hooks
	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{} // Custom metadata passed between hooks
	StopChain bool                   // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforeContentCreateHook receives the pending creation arguments (the first element is the
// draft document) and returns the arguments to continue with.
type BeforeContentCreateHook func(hctx *HookContext, contentType string, args []Document) ([]Document, error)

// AfterContentCreateHook is called after content is persisted
type AfterContentCreateHook func(hctx *HookContext, contentType string, doc Document) error

// AfterExtensionsAppliedHook is called after an enable or disable run completed
type AfterExtensionsAppliedHook func(hctx *HookContext, courseID string, action Action, applied []*Descriptor) error

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

// AddContentHook registers a create hook for contentType.
func (h *Hooks) AddContentHook(contentType string, hook BeforeContentCreateHook) {
	if h.BeforeContentCreate == nil {
		h.BeforeContentCreate = make(map[string][]BeforeContentCreateHook)
	}
	h.BeforeContentCreate[contentType] = append(h.BeforeContentCreate[contentType], hook)
}

// executeBeforeContentCreate threads args through the hooks registered for contentType
func (h *Hooks) executeBeforeContentCreate(ctx context.Context, contentType string, args []Document) ([]Document, error) {
	hooks := h.BeforeContentCreate[contentType]
	if len(hooks) == 0 {
		return args, nil
	}

	hctx := NewHookContext(ctx)
	current := args
	for _, hook := range hooks {
		next, err := hook(hctx, contentType, current)
		if err != nil {
			return nil, err
		}
		if next != nil {
			current = next
		}
		if hctx.StopChain {
			break
		}
	}
	return current, nil
}

// executeAfterContentCreate runs all AfterContentCreate hooks
func (h *Hooks) executeAfterContentCreate(ctx context.Context, contentType string, doc Document) error {
	if len(h.AfterContentCreate) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterContentCreate {
		if err := hook(hctx, contentType, doc); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// executeAfterExtensionsApplied runs all AfterExtensionsApplied hooks
func (h *Hooks) executeAfterExtensionsApplied(ctx context.Context, courseID string, action Action, applied []*Descriptor) error {
	if len(h.AfterExtensionsApplied) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterExtensionsApplied {
		if err := hook(hctx, courseID, action, applied); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// executeOnError runs all OnError hooks
func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}

// LoggingHook logs content creation, extension changes and errors
func LoggingHook(logf func(format string, args ...interface{})) *Hooks {
	return &Hooks{
		AfterContentCreate: []AfterContentCreateHook{
			func(hctx *HookContext, contentType string, doc Document) error {
				logf("Content created: %s %s (course: %s)", contentType, doc.ID(), doc.CourseID())
				return nil
			},
		},
		AfterExtensionsApplied: []AfterExtensionsAppliedHook{
			func(hctx *HookContext, courseID string, action Action, applied []*Descriptor) error {
				logf("Extensions %sd on course %s: %d", action, courseID, len(applied))
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx *HookContext, operation string, err error) {
				logf("Error in %s: %v", operation, err)
			},
		},
	}
}
