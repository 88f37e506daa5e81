// Package identity resolves bearer tokens into marketplace user ids.
//
// Resolver verifies HS256 tokens signed with JWT_SECRET and implements
// realtime.IdentityResolver, so the same credential authenticates socket
// handshakes (?token=) and plain HTTP requests through Middleware.
//
//	res, err := identity.NewResolver(cfg)
//	r.With(identity.Middleware(res)).Get("/api/events/stream/", svc.StreamHandler().ServeHTTP)
//
// Downstream handlers read the caller with UserIDFromContext.
package identity
