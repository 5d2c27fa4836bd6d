package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJobRejectsBadCron(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s.Start()
	defer func() { _ = s.Stop() }()

	err = s.AddJob("sweep", "not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)

	err = s.AddJob("sweep", "*/5 * * * *", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestStopCancelsJobContext(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	s.Start()
	require.NoError(t, s.Stop())
	assert.Error(t, s.ctx.Err())
}

func TestGocronLoggerPairsArgs(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s.Start()
	defer func() { _ = s.Stop() }()

	entry := gocronLogger{entry: s.log}.with([]any{"job", "sweep", "dangling"})
	assert.Equal(t, "sweep", entry.Data["job"])
	assert.NotContains(t, entry.Data, "dangling")
}
