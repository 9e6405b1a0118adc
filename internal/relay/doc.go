// Package relay owns the CTMP fan-out path.
//
// Ownership boundary:
// - destination registry and broadcast delivery
// - source and destination session lifecycles
// - accept loops and shutdown propagation
package relay
