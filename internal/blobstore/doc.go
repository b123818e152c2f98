// Package blobstore persists immutable, content-addressed payloads on disk.
//
// Blobs are keyed by the lowercase hex SHA-256 of their bytes and sharded by
// the first two characters of the ref. Each blob has a JSON sidecar holding its
// content type, size, and creation time. Writes land in a temp file and are
// renamed into place, so readers never observe partial payloads, and storing
// identical bytes twice returns the existing ref without rewriting it.
package blobstore
