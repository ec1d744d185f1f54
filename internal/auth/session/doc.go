// Package session holds the client-side session state for chatkit.
//
// It keeps the access/refresh token pair and the derived user identity,
// persists them through a StateStore, and provides an authenticated HTTP
// fetch that transparently refreshes an expired access token and retries
// once on 401. Concurrent refreshes are single-flighted: all callers
// share one underlying network call.
//
// Token claims are decoded for identity and expiry only. Nothing here is
// a trust boundary; verification is exclusively the server's job.
package session
