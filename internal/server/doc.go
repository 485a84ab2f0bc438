// Package server provides HTTP routing, middleware, OAuth login and server lifecycle for the web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("POST /api/upload") and path wildcards
// ("/api/audio/{user_id}"). Middleware can be attached globally with Use or per route through Handle.
//
// # Middleware
//
//   - [Logger] : one structured log line per request
//   - [Recover] : panics become 500 error envelopes
//   - [CORS] : credentialed requests from configured origins, preflight answered directly
//   - [RateLimiter] : token bucket per client address (x/time/rate)
//   - [RequireAuth] / [OptionalAuth] : bearer JWT verification; the caller is read back with [IdentityFrom]
//
// # Errors
//
// Every error response uses the same envelope:
//
//	{"status":"error","statusCode":404,"message":"Not found"}
//
// [WriteError] maps sentinel errors from the shared package to statuses and logs the internal detail,
// which is never sent to clients.
//
// # OAuth Handler
//
// [OAuthHandler] implements the browser side of the authorization code flow.
//
// The login route stores a random state in an HttpOnly cookie (CSRF protection) and redirects to the provider.
// The callback validates the state, exchanges the authorization code and hands the token to a completer,
// which signs the user in and returns the redirect target.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Lifecycle
//
// [Serve] runs the server under an errgroup and shuts it down gracefully when the context is cancelled.
package server
