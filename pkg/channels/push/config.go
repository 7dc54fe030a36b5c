package push

// Config holds Firebase Cloud Messaging credentials.
type Config struct {
	CredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	ProjectID       string `env:"FIREBASE_PROJECT_ID"`
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool {
	return c.CredentialsFile != ""
}
