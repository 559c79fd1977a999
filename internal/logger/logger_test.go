package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsCredentialFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("login", "user_id", "u1", "jwt_token", "abc.def.ghi", "Authorization", "Bearer x")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "[REDACTED]", fields["jwt_token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("chain", "10D")

	log.Warn("slow traversal")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "10D", logs.All()[0].ContextMap()["chain"])
}
