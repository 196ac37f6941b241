// Package ports defines the driven-side interfaces the roam engine depends
// on: the device controller, the inference client, and the state store.
// Adapters under pkg/adapters implement them; the engine only ever sees
// these contracts.
package ports
