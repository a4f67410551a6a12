// Package api provides the HTTP transport for the onward auth service.
//
// It exposes login, refresh-token rotation, logout, authorisation checks,
// session management, password changes and account administration over a
// chi router. Every authentication failure, whatever its cause, is answered
// with 401 and the same "authentication failed" message.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
