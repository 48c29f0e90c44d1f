// Package fetch models the request/response pair flowing through the
// interception layer: a read-only request descriptor derived from each
// intercepted request, a fully buffered response snapshot that can be
// duplicated before being both returned and stored, and the shared network
// client used by strategies, install-time precaching and background refreshes.
package fetch
