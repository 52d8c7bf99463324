// Package agent implements the probe agent, an HTTP daemon that drives many
// debug probes at once. Each opened probe is backed by its own multi.Proxy
// and therefore its own worker process, so probes fail and recover
// independently. Operations are invoked dynamically by name, and RTT channel
// data streams over WebSockets.
package agent
