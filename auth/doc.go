// Package auth provides bearer token authentication for the wallet RPC
// service.
//
// The surface stays small: an Authenticator validates a bearer token string
// and returns a UserInfo (or an error). HMACAuthenticator verifies HS256 JWTs
// signed with a shared secret and can also issue them, which is how the
// development daemon hands tokens to local clients.
//
// On the client side BearerToken attaches a token to every RPC. On the server
// side UnaryServerInterceptor and StreamServerInterceptor extract the token
// from the "authorization" metadata, verify it, and map failures to
// codes.Unauthenticated.
//
// Example:
//
//	authn, err := auth.NewHMAC(auth.HMACConfig{Secret: secret, Issuer: "walletd"})
//	if err != nil { log.Fatal(err) }
//	srv := grpc.NewServer(
//	    grpc.UnaryInterceptor(auth.UnaryServerInterceptor(authn)),
//	    grpc.StreamInterceptor(auth.StreamServerInterceptor(authn)),
//	)
//
// # Errors
//
// ErrUnauthorized signals the token is missing or invalid (signature, expiry,
// issuer, audience).
package auth
