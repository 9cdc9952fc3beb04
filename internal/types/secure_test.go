package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var billingSecrets = map[string]SecretString{
	"stripe api key":    "sk_live_51Habc123",
	"webhook secret":    "whsec_9f8e7d6c",
	"database password": "postgres://notes:hunter2@db:5432/notes",
}

func TestSecretString_FormattingNeverLeaks(t *testing.T) {
	for name, secret := range billingSecrets {
		t.Run(name, func(t *testing.T) {
			raw := secret.Unmask()
			for _, verb := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
				out := fmt.Sprintf(verb, secret)
				assert.NotContains(t, out, raw, "verb %s", verb)
				assert.Contains(t, out, redacted, "verb %s", verb)
			}
		})
	}
}

func TestSecretString_JSONInsideStruct(t *testing.T) {
	billing := struct {
		PriceID   string       `json:"price_id"`
		SecretKey SecretString `json:"secret_key"`
	}{PriceID: "price_pro", SecretKey: billingSecrets["stripe api key"]}

	data, err := json.Marshal(billing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price_id":"price_pro","secret_key":"[REDACTED]"}`, string(data))
}

func TestSecretString_SlogAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("billing configured",
		"webhook_secret", billingSecrets["webhook secret"],
		slog.Any("stripe_key", billingSecrets["stripe api key"]),
	)

	out := buf.String()
	assert.NotContains(t, out, "whsec_9f8e7d6c")
	assert.NotContains(t, out, "sk_live_51Habc123")
	assert.Contains(t, out, `"webhook_secret":"[REDACTED]"`)
}

func TestSecretString_Unmask(t *testing.T) {
	key := billingSecrets["stripe api key"]
	assert.Equal(t, "sk_live_51Habc123", key.Unmask())

	var empty SecretString
	assert.Equal(t, "", empty.Unmask())
	assert.Equal(t, redacted, empty.String())
}
