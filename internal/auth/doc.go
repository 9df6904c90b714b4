// Package auth holds the OAuth device-flow session used to talk to the Yoto
// API: persisted token pairs, expiry checks against the JWT exp claim, refresh
// with a safety margin, and fallback to interactive device authorization.
package auth
