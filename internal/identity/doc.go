// Package identity is the authentication boundary of Homey Core.
//
// The rest of the system talks to the identity service only through the
// Provider interface: sign in, sign up, sign out, refresh, look up the
// current session, and subscribe to session changes. Anything behind that
// interface is a black box.
//
// LocalProvider is the shipped implementation. It keeps accounts and
// sessions in SQLite, hashes passwords with Argon2id and issues HS256 JWT
// access tokens with rotating opaque refresh tokens.
//
// Failures the user should see are returned as *AuthError; UserMessage turns
// any error into the text for the sign-in form:
//
//	session, err := provider.SignIn(ctx, email, password)
//	if err != nil {
//	    showError(identity.UserMessage(err)) // "Invalid email or password. Please try again."
//	    return
//	}
package identity
