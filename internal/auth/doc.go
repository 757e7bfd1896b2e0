// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the credential lifecycle: password login and a
// one-time-code password reset that does not reveal whether an account
// exists.
//
// # Domain Types
//
// Domain types (Account, Challenge, Session) should be created using their
// constructors:
//   - NewAccount - creates an Account with a normalized email and hash
//   - NewChallenge - creates a Challenge bound to an (account, purpose) pair
//   - NewSession - creates a Session with validated account and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Components
//
//   - CredentialStore - lookup, verification and replacement of password hashes
//   - OTPManager - issue and verify one-time codes with attempt caps
//   - SessionIssuer - mint and resolve opaque session tokens
//   - Dispatcher - asynchronous code delivery through a Notifier
//   - Janitor - periodic removal of expired challenges and sessions
//
// # Service
//
// Service composes the components above. Every operation returns an Outcome
// whose Status and Message are safe to hand to any caller.
package auth
