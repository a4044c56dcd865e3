package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescer_BelowThresholdsFlushesOnlyOnClose(t *testing.T) {
	var flushes []string
	co := NewCoalescer(func(full string) { flushes = append(flushes, full) })
	clock := time.Now()
	co.now = func() time.Time { return clock }
	co.lastFlush = clock

	co.Write("Hi")
	co.Write(" there")
	assert.Empty(t, flushes)

	co.Close()
	require.Equal(t, []string{"Hi there"}, flushes)
}

func TestCoalescer_CharThresholdFlushesMidStream(t *testing.T) {
	var flushes []string
	co := NewCoalescer(func(full string) { flushes = append(flushes, full) })
	clock := time.Now()
	co.now = func() time.Time { return clock }
	co.lastFlush = clock

	big := strings.Repeat("a", CoalesceMaxChars)
	co.Write(big)
	require.Equal(t, []string{big}, flushes)

	co.Write("b")
	co.Close()
	// Final flush carries the full accumulated text, not the delta.
	require.Equal(t, []string{big, big + "b"}, flushes)
}

func TestCoalescer_TimeThresholdFlushesMidStream(t *testing.T) {
	var flushes []string
	co := NewCoalescer(func(full string) { flushes = append(flushes, full) })
	clock := time.Now()
	co.now = func() time.Time { return clock }
	co.lastFlush = clock

	co.Write("a")
	assert.Empty(t, flushes)

	clock = clock.Add(CoalesceMaxDelay)
	co.Write("b")
	require.Equal(t, []string{"ab"}, flushes)
}

func TestCoalescer_CloseAfterNoFragments(t *testing.T) {
	var flushes []string
	co := NewCoalescer(func(full string) { flushes = append(flushes, full) })

	co.Close()
	require.Equal(t, []string{""}, flushes)
	assert.Equal(t, "", co.Text())
}
