package extensions

import "context"

// Walker enumerates the documents of one location under a course. Every content document
// carries a direct _courseId back-reference, so one filtered read covers a location; the
// course location is the anchor document itself.
type Walker struct {
	store Store
}

// NewWalker creates a walker over store.
func NewWalker(store Store) *Walker {
	return &Walker{store: store}
}

// Criteria returns the selection used for location under courseID.
func (w *Walker) Criteria(courseID, location string) Criteria {
	if location == TypeCourse {
		return Criteria{FieldID: courseID}
	}
	return Criteria{FieldCourseID: courseID}
}

// Documents returns the documents of location under courseID, projected to the fields the
// applier rewrites.
func (w *Walker) Documents(ctx context.Context, courseID, location string) ([]Document, error) {
	docs, err := w.store.Retrieve(ctx, location, w.Criteria(courseID, location),
		FieldID, FieldExtensions, FieldEnabledExtensions)
	if err != nil {
		return nil, storeError("retrieve", location, err)
	}
	return docs, nil
}
