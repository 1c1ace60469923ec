// Package termbridge connects a browser terminal to a pseudo-terminal backed
// process: a local shell on the bridge host, or the ssh client pointed at an
// inventory device.
//
// Every process is spawned from a discrete argument vector built by
// [BuildCommand]; no shell command string is ever assembled, so descriptor
// fields cannot inject commands. Private keys supplied with a descriptor are
// written to owner-only files by the [CredentialStore] and removed when the
// session ends.
//
// # Core Components
//
//   - [Descriptor]: normalized description of the session target.
//   - [BuildCommand]: pure mapping from a descriptor to program and arguments.
//   - [CredentialStore]: ephemeral 0600 key files plus an orphan [CredentialStore.Sweep].
//   - [Process]: a child on a PTY with write, resize, kill and an exit event.
//   - [Registry]: connection id to live [Session], one session per connection.
//   - [Bridge]: handles init, input, resize and disconnect for a connection.
//   - [RateLimiter]: token bucket for client messages.
//
// # Session Lifecycle
//
//  1. [Bridge.StartSession] validates the descriptor. An invalid one is
//     reported to the client and leaves any existing session alone.
//
//  2. The new session is registered; a previous session on the same
//     connection is torn down before anything is spawned.
//
//  3. The key file is written (a write failure aborts the session), the
//     command is spawned and the relays start.
//
//  4. Disconnect, process exit, spawn failure, a failed client write,
//     replacement or shutdown moves the session from [StateActive] to
//     [StateTearingDown]. Only the first trigger acts: it kills the process
//     group, closes the PTY, deletes the key file and unregisters the
//     session, which then reaches [StateGone].
//
// On exit, output already produced is relayed for up to
// [Config.DrainGrace] before the client receives the exit code.
//
// # Limits
//
//   - Input messages over [DefaultMaxInputSize] are dropped by the transport.
//   - Dimensions are capped at [MaxTermCols] x [MaxTermRows].
//   - Clients may send [MessageRateLimit] messages per second with a burst of
//     [MessageRateBurst].
//
// # Log Prefixes
//
// The bridge logs at the [bridge] prefix, sessions at [session] and key
// handling at [credentials].
package termbridge
