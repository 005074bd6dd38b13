package common

const (
	// ServerSenderName is the sender used for join and leave announcements.
	// Accounts cannot be registered under this name.
	ServerSenderName = "Server"

	// SaltSize is the number of random bytes in a per-user password salt.
	SaltSize = 16
)
