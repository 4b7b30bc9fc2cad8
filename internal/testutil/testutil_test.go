package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, Receive(t, ch, ShortTestTimeout, "value not delivered"))
}

func TestQuietLogger(t *testing.T) {
	t.Parallel()

	log := QuietLogger()
	log.Info("dropped")
	log.Error("kept but discarded")
	assert.NotNil(t, log.Module("child"))
}
