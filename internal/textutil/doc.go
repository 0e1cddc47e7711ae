// Package textutil holds the small text transformations shared by the
// pipelines: filesystem slugs, display casing, and the word tokens used for
// fuzzy title matching.
package textutil
