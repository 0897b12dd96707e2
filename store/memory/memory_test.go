package memory

import (
	"testing"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leave.Store {
		return New()
	})
}
