package types

import "log/slog"

const redacted = "[REDACTED]"

// SecretString holds a credential loaded from the environment or SSM: the
// database URL, the Stripe API key and the webhook signing secret. Every
// formatting path (fmt verbs, JSON, slog attributes) prints a placeholder.
// Call Unmask at the single point where the raw value is handed to a driver
// or client.
type SecretString string

func (s SecretString) String() string { return redacted }

// GoString covers %#v, which bypasses String.
func (s SecretString) GoString() string { return `types.SecretString("` + redacted + `")` }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue keeps the raw value out of slog output, including when a whole
// config struct is logged with slog.Any.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

// Unmask returns the plaintext.
func (s SecretString) Unmask() string { return string(s) }
