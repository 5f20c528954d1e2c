package auth

// Account is the credential view of a user record, just enough to decide a
// login and validate live sessions.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Status       string
	TokenVersion int64
}

// CanLogin reports whether the account status permits authentication.
func (a Account) CanLogin() bool {
	return a.Status == "ACTIVE"
}
