// Package monitor renders finplan jobs and projections in the terminal.
//
// Model is a bubbletea program that follows one job through a Feed of
// status updates. The chart helpers render projection results with
// ntcharts sparklines for non-interactive output.
package monitor
