package factory

import (
	"testing"

	"propman-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateway(t *testing.T) {
	log := logger.NewNopLogger()

	gw, err := NewGateway(Options{}, log)
	require.NoError(t, err)
	assert.Equal(t, "mpesa", gw.Name())

	gw, err = NewGateway(Options{Provider: "Midtrans"}, log)
	require.NoError(t, err)
	assert.Equal(t, "midtrans", gw.Name())

	_, err = NewGateway(Options{Provider: "paypal"}, log)
	assert.Error(t, err)
}
