// Package analysis reconciles sandbox submissions with stored reports.
//
// The Service submits samples and URLs to the FireEye AX appliance, records
// one report row per (sample, environment) pair, and later turns a stored
// report back into a live status or a full result by asking the appliance.
// Report rows are written once and never updated; status is always derived
// from the appliance at read time.
//
// Callers pass the appliance Token and an auth.Scope explicitly on every
// call. The same Service therefore serves the public tree, where any sample
// may be read, and the control panel tree, where reads are limited to the
// caller's own samples.
package analysis
