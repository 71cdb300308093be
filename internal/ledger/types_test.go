package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}: true,
		{StatusFailed, StatusProcessing}:  true,
		{StatusProcessing, StatusDone}:    true,
		{StatusProcessing, StatusFailed}:  true,
		{StatusDone, StatusExpired}:       true,
	}
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusExpired.Valid())
	assert.False(t, Status("queued").Valid())
}
