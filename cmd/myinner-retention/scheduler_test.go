package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_PanicsGoToLogrus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c := newScheduler(logger)

	_, err := c.AddFunc("@every 1s", func() { panic("cleanup exploded") })
	require.NoError(t, err)
	c.Start()
	defer func() { <-c.Stop().Done() }()

	require.Eventually(t, func() bool {
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.ErrorLevel && entry.Message == "cron: panic" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCronLogger_Fields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cronLogger{logger: logger}.Info("schedule", "entry", 1, "dangling")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "cron: schedule", entry.Message)
	assert.Equal(t, 1, entry.Data["entry"])
	assert.NotContains(t, entry.Data, "dangling")
}
