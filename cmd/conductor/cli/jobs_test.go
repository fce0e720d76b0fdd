package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c, err := NewJobsCLI("127.0.0.1:0")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Trigger(context.Background(), "stock:unknown")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported job")
}

func TestTriggerNilReceiver(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), "stock:low_stock_scan")
	require.Error(t, err)
}
