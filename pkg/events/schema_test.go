package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/events"
)

func TestValidateEnvelope(t *testing.T) {
	t.Parallel()

	valid := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-1"),
	}
	payload, err := json.Marshal(valid)
	require.NoError(t, err)

	assert.NoError(t, events.ValidateEnvelope(payload))
}

func TestValidateEnvelopeRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{"id": "x",`},
		{name: "missing id", payload: `{"event_type": "approval.request.submitted", "request_id": "req-1"}`},
		{name: "missing request id", payload: `{"id": "e-1", "event_type": "approval.request.submitted"}`},
		{name: "empty id", payload: `{"id": "", "event_type": "t", "request_id": "req-1"}`},
		{name: "wrong types", payload: `{"id": 1, "event_type": 2, "request_id": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Error(t, events.ValidateEnvelope([]byte(tt.payload)))
		})
	}
}

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	event := events.NewBaseEvent(events.DecisionSubmittedEvent, events.RequestTypeOffer, "req-2")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, events.DecisionSubmittedEvent, event.Type)
	assert.Equal(t, events.RequestTypeOffer, event.RequestType)
	assert.Equal(t, "req-2", event.RequestID)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, event.ID, event.EventID())

	other := events.NewBaseEvent(events.DecisionSubmittedEvent, events.RequestTypeOffer, "req-2")
	assert.NotEqual(t, event.ID, other.ID)
}
