// Package schedule turns a submitted schedule intent into a run decision.
//
// Only IMMEDIATE (or an inactive intent) starts a run. RECURRING and
// SPECIFIC_TIME are accepted, normalized and reported back, but no timer is
// armed for them.
package schedule
