// Package mcp exposes the projection engine and the job service as MCP tools.
//
// Projection tools (financial_health, debt_payoff, goal_projections,
// spending_patterns) run synchronously on the engine. Job tools (job_submit,
// job_status, job_cancel) go through the job service, with jobs recorded
// under the "mcp" owner.
package mcp
