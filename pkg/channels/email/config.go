package email

// Config holds email channel configuration.
// Postmark tokens are optional so development environments can write messages
// to DevDir instead of sending them.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// Production reports whether cfg carries Postmark credentials.
func (c Config) Production() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
