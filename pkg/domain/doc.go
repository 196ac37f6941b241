// Package domain contains the core types of the roam engine: subgoals and
// their lifecycle, the orchestration state shared by the agent stages, the
// message transcript, and the lifecycle hooks used for observability.
//
// The domain layer has no dependencies on adapters or on the graph runtime;
// it is pure data plus the mutation rules the rest of the engine relies on.
package domain
