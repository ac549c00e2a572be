// Package sandbox provides secure code execution capabilities.
//
// The sandbox package runs one untrusted code submission per isolated,
// resource-capped container. A fixed tracer driver script executes the
// submitted code inside the container, records an execution trace and prints
// a single JSON document on stdout, which the executor parses into a
// structured result. The package also hosts the embedding runner used for
// the best-effort post-terminal embedding step.
package sandbox
