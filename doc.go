// Package accounts provides an account lifecycle and authentication engine:
// registration, activation codes, password reset codes, credential based
// sessions and authenticated profile updates.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus persisted via Bun. New accounts start
//     active, or pending_activation when Settings.ActivateMode is "user".
//     The only transition is pending_activation -> active, driven by
//     ActivationService.Activate with a valid single-use code.
//
// Verification codes:
//   - CodeCodec issues "<account id>!<secret>" codes. Only a SHA-256 of the
//     secret is stored and comparisons run in constant time. Activation and
//     password reset use the same codec with independent stored hashes.
//
// Collaborators:
//   - Hooks replaces a global event bus with typed callbacks (BeforeRegister,
//     Registered, LoggedOut, AfterGetUser).
//   - Mailer delivers codes. Delivery is best-effort: failures are logged and
//     never roll back a persisted account or code.
//   - ActivitySink receives audit events. Sinks run best-effort.
//
// Sessions:
//   - Session is an explicit capability passed to every authorized operation.
//     SessionTokens serializes it as a signed JWT for transports.
package accounts
