package reconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avfusion/radar-fusion/internal/config"
)

func TestChannelPendingClears(t *testing.T) {
	c := New()
	_, ok := c.Pending()
	require.False(t, ok, "expected no pending request on a fresh channel")

	cfg := config.EmptyTuningConfig()
	id := c.Request(cfg)

	req, ok := c.Pending()
	require.True(t, ok, "expected a pending request after Request")
	assert.Equal(t, id, req.ID)
	assert.Same(t, cfg, req.Config)

	_, ok = c.Pending()
	assert.False(t, ok, "expected Pending to clear the request after it is taken")
}

func TestChannelLatestRequestWins(t *testing.T) {
	c := New()
	c.Request(config.EmptyTuningConfig())
	second := config.EmptyTuningConfig()
	id2 := c.Request(second)

	req, ok := c.Pending()
	require.True(t, ok, "expected a pending request")
	assert.Equal(t, id2, req.ID)
	assert.Same(t, second, req.Config)
}
