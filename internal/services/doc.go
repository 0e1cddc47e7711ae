// Package services defines shared utilities consumed by the submission and
// distribution pipelines.
//
// Key responsibilities:
//   - Context helpers that stamp work item keys, pipeline states, and
//     correlation identifiers for logging.
//   - The failure taxonomy (selector drift, expired sessions, timeouts,
//     rejected downloads, network and validation errors) plus the Wrap helper
//     that tags errors for classification with errors.Is.
//   - Retry classification and user-facing failure messages.
package services
