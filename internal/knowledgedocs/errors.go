package knowledgedocs

import "errors"

// ErrDocumentNotFound is returned by Store.GetDocument when no document with
// the requested ID exists.
var ErrDocumentNotFound = errors.New("knowledgedocs: document not found")
