package post

// Owns reports whether identity authored p. It must be evaluated with the
// identity resolved for the action being taken, never one cached earlier.
func Owns(identity *Identity, p Post) bool {
	return identity != nil && identity.ID != "" && identity.ID == p.AuthorID
}
