// Package auth implements the credential and session lifecycle: password
// hashing and verification, short-lived pre-authentication sessions that
// carry a CSRF token, and their promotion to authenticated sessions.
//
// All state lives in a storage.Repository. Validation of either kind of
// session first deletes expired rows and then looks the record up inside a
// single repository transaction, so expired records are never returned.
package auth
