package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountSwapEvents(t *testing.T) {
	stream := strings.Join([]string{
		": ping",
		"",
		"id: 1",
		"event: swap",
		`data: {"id":"a"}`,
		"",
		"event: other",
		"data: {}",
		"",
		"id: 2",
		"event: swap",
		`data: {"id":"b"}`,
		"",
		"event: swap",
	}, "\n")

	calls := 0
	n, err := countSwapEvents(strings.NewReader(stream), func() { calls++ })
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, calls)
}
