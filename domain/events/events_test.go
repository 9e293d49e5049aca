package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversToAll(t *testing.T) {
	var a, b []Event
	boom := errors.New("down")

	f := Fanout{
		SinkFunc(func(e Event) error { a = append(a, e); return boom }),
		nil,
		SinkFunc(func(e Event) error { b = append(b, e); return nil }),
	}

	err := f.Emit(Event{Type: Trade, Symbol: "SYM"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)

	assert.NoError(t, Fanout{Discard}.Emit(Event{}))
}

func TestEventJSON(t *testing.T) {
	e := Event{
		Type:         Trade,
		Symbol:       "SYM",
		OrderID:      9,
		MakerOrderID: 3,
		Price:        "100.5000",
		Quantity:     4,
		Time:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "trade", m["type"])
	assert.Equal(t, "100.5000", m["price"])
	assert.EqualValues(t, 3, m["maker_order_id"])
	assert.NotContains(t, m, "bids")
	assert.Equal(t, "2024-01-02T03:04:05Z", m["ts"])
}
