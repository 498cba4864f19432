// Package event defines a synchronous pub-sub bus and the event types
// emitted by the drover pipeline. Events decouple the claim manager,
// gate, coordinator, and monitors from anything that wants to observe
// them (status reporting, tests) without direct dependencies.
package event
