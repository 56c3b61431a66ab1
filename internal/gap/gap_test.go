package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_NewSymbolsOnly(t *testing.T) {
	discovered := []string{"BTCUSDT", "ETHUSDT", "NEWUSDT"}
	known := []string{"BTCUSDT", "ETHUSDT"}
	assert.Equal(t, []string{"NEWUSDT"}, Detect(discovered, known))
}

func TestDetect_EmptyWhenNoGap(t *testing.T) {
	discovered := []string{"BTCUSDT", "ETHUSDT"}
	known := []string{"BTCUSDT", "ETHUSDT", "DELISTEDUSDT"}
	assert.Nil(t, Detect(discovered, known))
}

func TestDetect_EmptyStore(t *testing.T) {
	discovered := []string{"BTCUSDT"}
	assert.Equal(t, []string{"BTCUSDT"}, Detect(discovered, nil))
}
