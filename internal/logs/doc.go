// Package logs reads the daemon log file for the "logs" command.
//
// Last returns the final lines of the file with bounded memory; Follow polls
// for appended lines until the context is cancelled. A missing file is
// treated as empty so the command works before the daemon has started.
package logs
