// Package server hosts the Fiber HTTP service, request middleware chain, and
// origin registry glue that maps each intercepted Host onto its upstream.
// NewApp builds the application with request-id and Host lookup middleware;
// diagnostics routes under /-/ are attached by the routes package, and
// MountProxy installs the catch-all route that hands every other request to
// the proxy package as a fetch event.
package server
