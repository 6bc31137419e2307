// Package client contains the client-side building blocks that talk to the
// radsync API and open the local database.
//
// # Overview
//
//  1. Transport: an HTTP wrapper that resolves paths against a base URL,
//     attaches the bearer credential from a Session, sends If-None-Match for
//     URLs with a known validator, refreshes the credential once on 401 and
//     maps failures to typed errors.
//  2. Tracker: the session-scoped URL -> validator map consulted by Transport.
//  3. API: typed calls for delta, push, legacy pull and the read endpoints.
//  4. InitDatabase: opens the sqlite Local Store and applies embedded goose
//     migrations, falling back to memory-backed repositories when it cannot.
//
// # Error Handling
//
// Sentinel errors match with errors.Is: ErrUnavailable (network),
// ErrUnauthorized (terminal after one refresh+retry), ErrLocalDataNotAvailable.
// Non-2xx responses other than 304 surface as *HTTPError (errors.As).
//
// Session, Tracker and Transport are safe for concurrent use.
package client
