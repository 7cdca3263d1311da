// Package workspace manages the per-workdir data directory where buildsafe
// keeps its state: the build log, job records, the history database, build
// reports and the success receipt.
//
// The directory lives at <workdir>/.buildsafe and persists across builds so
// that job records survive a supervisor crash and the sweeper can tell a
// finished build from an abandoned one.
package workspace
