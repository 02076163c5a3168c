// Package authbridge provides a multi-provider authentication backend for
// Go applications.
//
// Authbridge centers on one idea: many credentials, one identity. A user
// may sign in with a password, a phone number verified through Firebase, or
// a Google account, and every route lands on the same canonical Identity
// record. The reconciliation engine owns the rules for matching, creating,
// linking and unlinking those credentials.
//
// # Architecture
//
// Identity: The canonical user record. It carries the unique identifiers
// (username, email, phone, provider subject ids), profile fields, account
// flags and the set of linked auth methods. No identifier is ever shared
// between two identities, and an identity always keeps at least one auth
// method.
//
// Reconciler: The engine behind every auth operation. It authenticates
// credentials, runs the create-or-register protocol, and applies the
// link/unlink and profile-update rules.
//
// Verifiers: External credentials arrive as raw provider tokens. The
// providers/firebase and providers/google packages validate them and
// reduce them to an ExternalClaim the reconciler understands.
//
// Issuer: A successful authentication produces a session proof. Two
// interchangeable designs sit behind the Issuer interface: revocable
// server-side sessions (SessionIssuer) and stateless signed tokens
// (TokenIssuer). A deployment picks exactly one via ProofMode.
//
// # Basic Usage
//
// Wire the engine with a store and an issuer:
//
//	import (
//	    "github.com/rkolluri/authbridge"
//	    "github.com/rkolluri/authbridge/providers/google"
//	    "github.com/rkolluri/authbridge/stores/mem"
//	)
//
//	store := mem.NewIdentityStore()
//	reconciler := authbridge.NewReconciler(store)
//	issuer := &authbridge.SessionIssuer{Store: mem.NewSessionStore()}
//
// Serve the HTTP boundary:
//
//	api := &authbridge.API{
//	    Reconciler: reconciler,
//	    Issuer:     issuer,
//	    Mode:       authbridge.ProofSessions,
//	    Google:     google.NewVerifier(clientID),
//	}
//	http.ListenAndServe(":8080", api.Router())
//
// Production deployments swap stores/mem for stores/gorm and a real
// database; the engine is unaware of the difference.
package authbridge
