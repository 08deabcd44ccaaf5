// Package observe provides the ambient observability plumbing for the
// call trace service: zerolog logger construction from configuration
// and Prometheus metrics for record emission, delivery, and the
// correlation registry.
//
// Components receive a zerolog.Logger and an optional *Metrics rather
// than reaching into globals, so binaries and tests control exactly
// where diagnostics go.
package observe
