// Package textutil provides the text handling shared by document assembly and
// snapshot storage.
//
// The primary use cases are:
//   - Cleaning track titles derived from filenames (leading track numbers)
//   - Folding card titles into filesystem-safe directory slugs
package textutil
