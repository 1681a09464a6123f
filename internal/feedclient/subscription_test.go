package feedclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionKeyIgnoresSymbolOrder(t *testing.T) {
	a := SubscriptionRequest{Dataset: "EQUS.MINI", Schema: SchemaMBP1, Symbols: []string{"MSFT", "AAPL"}}
	b := SubscriptionRequest{Dataset: "EQUS.MINI", Schema: SchemaMBP1, Symbols: []string{"AAPL", "MSFT"}}

	assert.Equal(t, a.key(), b.key())
}

func TestSubscriptionKeySeparatesSchemaAndDataset(t *testing.T) {
	base := SubscriptionRequest{Dataset: "EQUS.MINI", Schema: SchemaMBP1, Symbols: []string{"AAPL"}}

	schema := base
	schema.Schema = SchemaTrades
	assert.NotEqual(t, base.key(), schema.key())

	dataset := base
	dataset.Dataset = "GLBX.MDP3"
	assert.NotEqual(t, base.key(), dataset.key())
}

func TestSubscriptionMatches(t *testing.T) {
	req := SubscriptionRequest{Dataset: "EQUS.MINI", Schema: SchemaMBP1, Symbols: []string{"AAPL", "MSFT"}}

	assert.True(t, req.matches("EQUS.MINI", []string{"AAPL"}))
	assert.True(t, req.matches("EQUS.MINI", []string{"TSLA", "MSFT"}))
	assert.False(t, req.matches("EQUS.MINI", []string{"TSLA"}))
	assert.False(t, req.matches("GLBX.MDP3", []string{"AAPL"}))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "ws://example.com", APIKey: "k"}.withDefaults()

	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.InitialReconnectDelay)
}
