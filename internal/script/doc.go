// Package script runs the external hypervisor scripts.
//
// The Runner is the only channel between anvil and the hypervisor. It knows
// nothing about virtual machines: it resolves a script by name inside a fixed
// directory, finds an interpreter that answers a version probe, runs the
// script with positional arguments under a hard timeout, and normalizes every
// failure mode into a single Result shape.
//
// Failure Kinds:
//
//   - NotFound: the script file does not exist; no process is spawned
//   - InterpreterUnavailable: no configured interpreter answered --version
//   - Timeout: the script outlived the timeout; partial output is discarded
//   - ExecutionError: the process could not be launched or was killed
//   - ExitStatus: the script exited non-zero
//
// Success is exactly an exit code of 0. Interpreting stdout (for example the
// UUID printed on the last line by create_vm.sh) is left to the caller.
//
// Cancellation:
//
// A started script is never cancelled by its caller. Run detaches from the
// caller's context cancellation and only the configured timeout can stop the
// process.
package script
