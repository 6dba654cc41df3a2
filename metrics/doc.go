// Package metrics provides the bridge's Prometheus instruments and an
// optional HTTP endpoint exporting them.
//
// A nil [*Metrics] is valid everywhere and records nothing, so the data
// path carries no cost when metrics are disabled.
package metrics
