// Package preflight runs readiness checks for the local state directories,
// the stored login, and the two remote services yotoup talks to.
//
// `yotoup doctor` prints every result; the upload command runs the directory
// checks before hashing anything so a read-only snapshot directory is reported
// up front instead of after the transcodes finish.
package preflight
