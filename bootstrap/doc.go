// Package bootstrap runs podflow binaries through a uniform lifecycle.
//
// An App starts registered components in order, runs hooks, performs a
// ready check, prints a startup summary and then either waits for a
// shutdown signal (Run) or executes a finite task (RunTask). Components
// are stopped in reverse order within the graceful timeout.
package bootstrap
