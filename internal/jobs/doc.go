// Package jobs is the in-process job service: a registry of jobs with
// monotonic status transitions, a bounded worker pool that runs them through
// the projection engine, and lifecycle events published to NATS.
//
// Events are published to subjects:
//   - {prefix}.{owner}.{job_id}.started
//   - {prefix}.{owner}.{job_id}.progress
//   - {prefix}.{owner}.{job_id}.completed
//   - {prefix}.{owner}.{job_id}.failed
//
// Terminal jobs are removed from memory after the retention TTL.
package jobs
