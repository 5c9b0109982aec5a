package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	ctx := context.Background()

	entry := GetLogger(ctx)
	require.NotNil(t, entry)
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	ctx := context.Background()

	custom := logrus.NewEntry(logrus.New()).WithField("template", "commit-message")
	ctx = WithLogger(ctx, custom)

	entry := GetLogger(ctx)
	assert.Equal(t, "commit-message", entry.Data["template"])
}

func TestSetLogLevel(t *testing.T) {
	defer L.Logger.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("not-a-level"))
}

func TestSetLogFormatJSON(t *testing.T) {
	defer SetLogFormat("fmt")

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogFormat("json")

	L.Info("hello")
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
