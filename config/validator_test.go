package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWithDetails_ReturnsOneEntryPerField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "trace"
	cfg.MetricsPort = 0

	err := ValidateWithDetails(cfg)
	require.Error(t, err)

	details, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	// DefaultConfig leaves NodeName empty, so "required" fails alongside the two fields above.
	assert.Len(t, details, 3)
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "LogLevel", Message: "must be one of [debug info warn error]", Value: "trace"},
	}

	msg := errs.Error()
	assert.Contains(t, msg, "LogLevel")
	assert.NotEqual(t, "no validation errors", msg)

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}
