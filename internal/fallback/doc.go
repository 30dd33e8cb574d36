// Package fallback provides the static dataset served when the relay runs
// in static-fallback mode and the upstream service is not used or not
// reachable.
//
// A Dataset is loaded once at startup, either from a YAML file or from the
// document embedded in the binary, and is never modified afterwards.
package fallback
