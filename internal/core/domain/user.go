package domain

// User is the authenticated caller. Only the identifier is needed by the core.
type User struct {
	ID string
}
