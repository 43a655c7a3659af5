// Package dedupe rejects repeated request keys within a time window.
package dedupe
