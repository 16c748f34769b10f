// Package client drives a rigid-body engine over a channel.Conn.
//
// A PhysicsClient validates every index and vector length against the body
// metadata it caches before anything is sent, so malformed requests fail
// locally with the same error kinds the engine would report. It is not safe
// for concurrent use.
package client
