// Package vm orchestrates the instance workflows.
//
// Each workflow sequences the same steps: validate the typed request, invoke
// the external script, interpret its result, mutate the store, and report
// the outcome. The external script always runs first. When it fails nothing
// local changes and the caller receives an *ExternalError carrying the
// script's diagnostic.
//
// The workflows are:
//   - Create: provision a new instance, optionally with services and a user
//   - Start, Stop, Delete: lifecycle actions, dispatched through Perform
//   - Clone: copy an instance and its services and users under a new name
//   - InstallService, CreateUser: post-creation changes to an instance
//   - Stats: fetch a JSON statistics document from the hypervisor
//
// Create User Exception:
//
// When Create is asked to provision a user and manage_users.sh fails, the
// user row is still recorded by default. Set
// Options.RecordUserOnProvisionFailure to false to record it only when the
// script succeeds.
//
// Drift:
//
// If the external create or clone succeeds but the local insert fails (for
// example a concurrent request claimed the same name first), the error is
// logged as drift and returned. No compensating destroy is attempted.
//
// Context Support:
//
// Workflows pass their context to the store and runner, but a started script
// is never cancelled by the caller; only the runner's timeout stops it.
package vm
