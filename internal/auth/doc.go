// Package auth implements the credential encryptor used by the login
// handshake. It converts a username/password pair into the opaque encrypted
// blob the authentication endpoint expects. The blob format is dictated by
// the remote service and is treated as opaque by every other package.
package auth
