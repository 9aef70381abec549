// Package metrics exports alarm and link state for prometheus.
package metrics
