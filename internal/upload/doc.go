// Package upload drives one audio file through the ingestion protocol:
// SHA-256 digest, upload slot request, a conditional PUT of the bytes, and
// polling until the server reports the transcoded digest. When the service
// already holds identical bytes the PUT is skipped and polling starts
// directly.
package upload
