// Package notifications pushes pipeline milestones to ntfy.
//
// The ntfy implementation posts to the configured topic URL and honours the
// per-event toggles in the [notifications] section. Without a topic the
// service is a no-op, so callers never check whether notifications are on.
package notifications
