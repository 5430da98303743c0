// Package hostfuncs implements the functions a sandboxed guest may call back
// into. Handlers see guest memory only through the bounds-checked GuestMemory
// view and have no dependency on a particular WASM runtime; the
// infrastructure/wazero package adapts them to wazero host modules.
//
// The only capability granted to guests is diagnostics: env.log, in either the
// no-argument trigger form or the one-argument offset form.
package hostfuncs
