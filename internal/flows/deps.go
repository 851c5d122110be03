package flows

// Deps groups flow dependency sets. The engine builds this once at Build and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Recovery RecoveryDeps
	Password PasswordDeps
}
