package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"signalbridge/src/model"
)

func TestSignalHistory_BoundedPerStrategy(t *testing.T) {
	h := NewSignalHistory(3)

	for i := 0; i < 10; i++ {
		h.AppendStrategy("momentum", model.Signal{ID: fmt.Sprintf("sig-%d", i)})
	}

	got := h.Strategy("momentum")
	assert.Len(t, got, 3)
	assert.Equal(t, "sig-7", got[0].ID)
	assert.Equal(t, "sig-9", got[2].ID)
}

func TestSignalHistory_BoundedPerSubscriber(t *testing.T) {
	h := NewSignalHistory(2)

	h.AppendSubscriber("uid-1", model.Signal{ID: "a"})
	h.AppendSubscriber("uid-1", model.Signal{ID: "b"})
	h.AppendSubscriber("uid-1", model.Signal{ID: "c"})
	h.AppendSubscriber("uid-2", model.Signal{ID: "x"})

	assert.Equal(t, []string{"b", "c"}, signalIDs(h.Subscriber("uid-1")))
	assert.Equal(t, []string{"x"}, signalIDs(h.Subscriber("uid-2")))
}

func TestSignalHistory_DefaultCapacity(t *testing.T) {
	h := NewSignalHistory(0)
	for i := 0; i < DefaultHistoryCapacity+10; i++ {
		h.AppendStrategy("s", model.Signal{ID: fmt.Sprintf("%d", i)})
	}
	assert.Len(t, h.Strategy("s"), DefaultHistoryCapacity)
}

func TestSignalHistory_EmptyBuckets(t *testing.T) {
	h := NewSignalHistory(5)
	assert.Empty(t, h.Strategy("missing"))
	assert.Empty(t, h.Subscriber("missing"))
}

func TestSignalHistory_ReturnsCopies(t *testing.T) {
	h := NewSignalHistory(5)
	h.AppendStrategy("s", model.Signal{ID: "a", Status: model.SignalStatusDelivered})

	got := h.Strategy("s")
	got[0].Status = "mutated"

	assert.Equal(t, model.SignalStatusDelivered, h.Strategy("s")[0].Status)
}

func signalIDs(signals []model.Signal) []string {
	out := make([]string, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.ID)
	}
	return out
}
