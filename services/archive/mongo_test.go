package archive

import (
	"testing"
	"time"

	"energy_stock_etl/services/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DisabledWithoutURI(t *testing.T) {
	client := NewClient("")
	require.NotNil(t, client, "a disabled client is still usable")

	assert.False(t, client.IsConfigured())

	status := client.ConnectionStatus()
	assert.Equal(t, false, status["uri_set"])
	assert.Equal(t, false, status["connected"])
	assert.Contains(t, status["error"], "MONGODB_URI")

	err := client.SaveExtraction(time.Now(), map[string][]marketdata.Bar{
		"XOM": {{Symbol: "XOM", Date: time.Now(), Close: 100}},
	}, nil)
	assert.Error(t, err, "saving without a connection must fail loudly")

	assert.NoError(t, client.Close(), "closing a disabled client is a no-op")
}

func TestClient_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping connection timeout test in short mode")
	}

	// An unresolvable host fails the initial connect but must still
	// return a client the pipeline can carry
	client := NewClient("mongodb://127.0.0.1:1/?connectTimeoutMS=200&serverSelectionTimeoutMS=200")
	require.NotNil(t, client)

	assert.False(t, client.IsConfigured())

	status := client.ConnectionStatus()
	assert.Equal(t, true, status["uri_set"])
	assert.Equal(t, false, status["connected"])
}
