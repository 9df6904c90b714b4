// Package logs reads the yotoup log file for `yotoup logs`: the last N lines,
// optionally followed by new lines as they are appended.
package logs
