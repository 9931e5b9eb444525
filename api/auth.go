package api

import (
	"net/http"
)

// Permission is the access level a request needs on a collection.
type Permission int

const (
	// PermissionRead is required by GET requests.
	PermissionRead Permission = iota
	// PermissionWrite is required by every other request.
	PermissionWrite
)

func (p Permission) String() string {
	if p == PermissionRead {
		return "read"
	}
	return "write"
}

// Authorizer decides whether a request may access a collection. A denial
// should wrap ErrForbidden.
type Authorizer interface {
	Authorize(r *http.Request, collectionID string, perm Permission) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(r *http.Request, collectionID string, perm Permission) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(r *http.Request, collectionID string, perm Permission) error {
	return f(r, collectionID, perm)
}

// AllowAll grants every request.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(*http.Request, string, Permission) error {
	return nil
}

func requiredPermission(r *http.Request) Permission {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return PermissionRead
	}
	return PermissionWrite
}
