// Package protocol implements the client for the catalog service's binary
// protocol. It contains two halves: the codec, which decodes the service's
// binary response envelope into typed payloads exactly once at the boundary,
// and the Session, which owns authentication state and exposes one method
// per remote operation (login, details, reviews, delivery resolution,
// purchase authorization, binary download, related entries).
//
// The service signals failures in-band: a well-formed envelope can carry a
// display error message alongside HTTP 200. Every operation checks that
// field before trusting any payload, so callers only ever see one of
// success payload, ServiceError, or DecodeError.
package protocol
