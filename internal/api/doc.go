// Package api is the authenticated HTTP client for the Yoto media and content
// endpoints.
//
// Every endpoint response is validated at the boundary and returned as a
// small tagged value (SlotResult, TranscodeStatus) or a card document. Non-2xx
// replies surface as *StatusError carrying the raw server text; 401 and 404
// unwrap to services.ErrNotAuthenticated and services.ErrNotFound.
package api
