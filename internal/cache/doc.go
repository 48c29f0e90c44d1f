// Package cache defines the named, versioned response stores used by the
// interception layer. A Storage holds any number of named stores (the static
// generation store "<app>-v<version>" and the long-lived dynamic store); each
// Store maps a request key ("<METHOD> <absolute URL>") to a buffered response
// snapshot. Two drivers are provided: a goleveldb-backed driver (default, and
// in-memory for tests) and a filesystem driver that keeps the temp file +
// rename write semantics. Drivers serialize their own reads and writes, so
// strategies, lifecycle and control handlers may use a Storage concurrently.
package cache
