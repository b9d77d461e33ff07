package audit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	assert.ErrorIs(t, svc.Append(context.Background(), Event{}), ErrInvalidEvent)
}

func TestService_AppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2025, 5, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	svc.clock = func() time.Time { return fixed }

	require.NoError(t, svc.Append(context.Background(), Event{Type: EventTypeWebhookOutcome}))

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.NotEmpty(t, evs[0].ID)
	assert.True(t, evs[0].CreatedAt.Equal(fixed))
	assert.Equal(t, time.UTC, evs[0].CreatedAt.Location())
}

func TestLogWebhookDelivery_KeepsJSONPayload(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogWebhookDelivery(context.Background(), Delivery{
		Path:     "/webhooks/vapi",
		Method:   http.MethodPost,
		RemoteIP: "10.0.0.1",
		Headers:  http.Header{"Content-Type": {"application/json"}},
		Body:     []byte(`{"message":{"call_id":"abc-1"}}`),
	})
	require.NoError(t, err)

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventTypeWebhookDelivery, evs[0].Type)
	assert.JSONEq(t, `{"message":{"call_id":"abc-1"}}`, string(evs[0].Payload))
	assert.JSONEq(t, `{"Content-Type":["application/json"]}`, string(evs[0].Headers))
	assert.Empty(t, evs[0].RawBody)
	assert.Equal(t, "10.0.0.1", evs[0].RemoteIP)
}

func TestLogWebhookDelivery_KeepsInvalidBodyAsText(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	require.NoError(t, svc.LogWebhookDelivery(context.Background(), Delivery{Body: []byte("not json")}))

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].Payload)
	assert.Equal(t, "not json", evs[0].RawBody)
}

func TestLogWebhookOutcome(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	id := int64(3)

	require.NoError(t, svc.LogWebhookOutcome(context.Background(), "abc-1", &id, "processed", "created"))

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "abc-1", evs[0].CallID)
	assert.Equal(t, int64(3), *evs[0].DealershipID)
	assert.Equal(t, "processed", evs[0].Outcome)
}
