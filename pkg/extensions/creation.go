package extensions

import (
	"context"

	"github.com/tendant/content-extensions/internal/logger"
)

// CreationHook pre-populates _extensions on new content with the defaults of every extension
// enabled on the owning course. It is best effort: failures are logged and the draft passes
// through unchanged, so content creation is never blocked.
type CreationHook struct {
	registry *Registry
	synth    *Synthesizer
	log      *logger.Logger
}

// NewCreationHook creates a creation hook.
func NewCreationHook(registry *Registry, synth *Synthesizer, log *logger.Logger) *CreationHook {
	if log == nil {
		log = logger.NewNop()
	}
	return &CreationHook{registry: registry, synth: synth, log: log}
}

// OnCreate implements BeforeContentCreateHook. args[0] is the draft document.
func (c *CreationHook) OnCreate(hctx *HookContext, contentType string, args []Document) ([]Document, error) {
	if len(args) == 0 || args[0] == nil {
		return args, nil
	}
	draft := args[0]
	courseID := draft.CourseID()
	if courseID == "" {
		return args, nil
	}

	ctx := context.Background()
	if hctx != nil && hctx.Context != nil {
		ctx = hctx.Context
	}

	descriptors, found, err := c.registry.Descriptors(ctx, courseID)
	if err != nil {
		c.log.Error("could not load extensions", "course_id", courseID, "content_type", contentType, "error", err)
		return args, nil
	}
	if !found {
		c.log.Info("could not retrieve config for course", "course_id", courseID)
	}

	extensions := make(map[string]interface{}, len(descriptors))
	for _, d := range descriptors {
		payload, ok := c.synth.SynthesizeLocation(d, contentType)
		if !ok {
			continue
		}
		extensions[d.Attribute()] = payload
	}

	updated := make(Document, len(draft)+1)
	for k, v := range draft {
		updated[k] = v
	}
	updated[FieldExtensions] = extensions

	out := make([]Document, len(args))
	copy(out, args)
	out[0] = updated
	return out, nil
}

// Register installs the hook for every content type that receives extension defaults.
func (c *CreationHook) Register(hooks *Hooks) {
	for _, contentType := range ContentTypes {
		hooks.AddContentHook(contentType, c.OnCreate)
	}
}
