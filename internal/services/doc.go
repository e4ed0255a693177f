// Package services wires the projection engine and job service from
// configuration.
//
// Both the HTTP daemon and the MCP server build their dependencies through
// NewRegistry so they share worker counts, metrics and the event publisher.
package services
