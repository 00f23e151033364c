package config

// Redacted returns a copy of the configuration safe for logging, with
// credentials replaced by a placeholder.
func (c Config) Redacted() Config {
	out := c
	if out.Wallet.PrivateKey != "" {
		out.Wallet.PrivateKey = "[REDACTED]"
	}
	if out.Wallet.KeyPassword != "" {
		out.Wallet.KeyPassword = "[REDACTED]"
	}
	if out.Postgres.Password != "" {
		out.Postgres.Password = "[REDACTED]"
	}
	if out.Postgres.DSN != "" {
		out.Postgres.DSN = "[REDACTED]"
	}
	if out.Redis.Password != "" {
		out.Redis.Password = "[REDACTED]"
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = "[REDACTED]"
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = "[REDACTED]"
	}
	if out.Notify.TelegramToken != "" {
		out.Notify.TelegramToken = "[REDACTED]"
	}
	if out.Notify.DiscordWebhookURL != "" {
		out.Notify.DiscordWebhookURL = "[REDACTED]"
	}
	return out
}
