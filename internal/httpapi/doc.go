// Package httpapi wires spec §6's HTTP surface to the domain services.
//
// Every route returns JSON (see SPEC_FULL.md §13's HTTP response format
// resolution): where spec.md describes a route as rendering an HTML page,
// this package runs the equivalent data operation and returns its canonical
// JSON representation. GET /recipients/search keeps its explicit content
// negotiation since spec.md calls it out by name.
//
// Middleware order (outermost first, per spec §5):
// AuthenticationBinding -> CSRF -> RateLimit -> SecurityHeaders -> handler.
package httpapi
