package collab

import "github.com/gogotex/gogotex/backend/go-collab/internal/document"

// MergeFunc computes the new content of current given an accepted edit.
// current is a copy and may be inspected freely. A returned error rejects the
// edit with ErrMergeFailed and leaves the document untouched.
type MergeFunc func(current *document.Document, edit EditSubmission) (string, error)

// ReplaceContent is the default merge: the submitted content wins whole.
func ReplaceContent(_ *document.Document, edit EditSubmission) (string, error) {
	return edit.Content, nil
}
