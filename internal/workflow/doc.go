// Package workflow runs song pipelines concurrently.
//
// A Pool executes Jobs on an errgroup bounded by the configured worker
// count. Each job owns its browser session and receives a private event
// channel; the pool forwards those events into a single sink in per-job
// order and keeps the latest event per key for status output. Jobs can be
// cancelled individually by key without disturbing the rest of the batch.
//
// SongJob adapts a submission pipeline to a Job and reports its outcome
// through the notifications service.
package workflow
