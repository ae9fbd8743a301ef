// Package email composes and delivers appointment notification emails.
package email

// SMTPConfig holds SMTP server connection parameters for outbound email.
type SMTPConfig struct {
	// Host is the SMTP server hostname (e.g., "smtp.gmail.com").
	Host string `yaml:"host"`

	// Port is the SMTP server port. Default: 587 (submission with STARTTLS).
	Port int `yaml:"port"`

	// Username is the SMTP login username (typically the email address).
	Username string `yaml:"username"`

	// Password is the SMTP login password.
	Password string `yaml:"password"`

	// StartTLS controls whether to upgrade the connection with STARTTLS.
	// Set to false for port 465 (implicit TLS).
	StartTLS bool `yaml:"starttls"`

	// From is the sender address used for the envelope and From header.
	From string `yaml:"from"`

	// SenderName is the display name shown to patients.
	SenderName string `yaml:"sender_name"`
}
