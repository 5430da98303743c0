// Package host provides the sandbox for the untrusted filter module.
//
// It abstracts the underlying WASM engine (wazero), validates the module
// against the fogbridge/v1 contract, registers the env.log diagnostic import
// in whichever shape the module declares, and owns the single live instance.
// Calls into the module go through an Invoker, which serializes them and
// bounds each one in wall-clock time.
package host
