package notify_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/notify"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

type stubNotifyStore struct {
	endpoints  map[uuid.UUID]store.WebhookEndpoint
	events     map[uuid.UUID]store.DomainEvent
	deliveries map[uuid.UUID]store.WebhookDelivery
	marked     []string
}

func newStubNotifyStore() *stubNotifyStore {
	return &stubNotifyStore{
		endpoints:  make(map[uuid.UUID]store.WebhookEndpoint),
		events:     make(map[uuid.UUID]store.DomainEvent),
		deliveries: make(map[uuid.UUID]store.WebhookDelivery),
	}
}

func (s *stubNotifyStore) ListEndpointsForTopic(_ context.Context, topic string) ([]store.WebhookEndpoint, error) {
	var out []store.WebhookEndpoint
	for _, ep := range s.endpoints {
		if !ep.Active {
			continue
		}
		for _, t := range ep.Topics {
			if t == topic {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (s *stubNotifyStore) InsertDelivery(_ context.Context, endpointID, eventID uuid.UUID) (store.WebhookDelivery, error) {
	d := store.WebhookDelivery{ID: uuid.New(), EndpointID: endpointID, EventID: eventID, Status: "pending"}
	s.deliveries[d.ID] = d
	return d, nil
}

func (s *stubNotifyStore) GetDelivery(_ context.Context, id uuid.UUID) (store.WebhookDelivery, error) {
	d, ok := s.deliveries[id]
	if !ok {
		return store.WebhookDelivery{}, pgx.ErrNoRows
	}
	return d, nil
}

func (s *stubNotifyStore) GetEndpoint(_ context.Context, id uuid.UUID) (store.WebhookEndpoint, error) {
	ep, ok := s.endpoints[id]
	if !ok {
		return store.WebhookEndpoint{}, pgx.ErrNoRows
	}
	return ep, nil
}

func (s *stubNotifyStore) GetDomainEvent(_ context.Context, id uuid.UUID) (store.DomainEvent, error) {
	ev, ok := s.events[id]
	if !ok {
		return store.DomainEvent{}, pgx.ErrNoRows
	}
	return ev, nil
}

func (s *stubNotifyStore) MarkDelivery(_ context.Context, id uuid.UUID, status, lastError string) error {
	d := s.deliveries[id]
	d.Status = status
	d.Attempts++
	d.LastError = lastError
	s.deliveries[id] = d
	s.marked = append(s.marked, status)
	return nil
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (s *stubNotifyStore) addEndpoint(url string, topics []string, active bool) store.WebhookEndpoint {
	ep := store.WebhookEndpoint{ID: uuid.New(), URL: url, Secret: "super-secret-signing-key", Topics: topics, Active: active}
	s.endpoints[ep.ID] = ep
	return ep
}

func (s *stubNotifyStore) addEvent(topic string, payload string) store.DomainEvent {
	ev := store.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: uuid.New(), Payload: []byte(payload), OccurredAt: time.Now()}
	s.events[ev.ID] = ev
	return ev
}

func TestDispatcherSchedulesPerEndpoint(t *testing.T) {
	st := newStubNotifyStore()
	st.addEndpoint("https://a.example/hook", []string{"estimate.sent"}, true)
	st.addEndpoint("https://b.example/hook", []string{"estimate.sent", "estimate.accepted"}, true)
	st.addEndpoint("https://c.example/hook", []string{"estimate.accepted"}, true)
	st.addEndpoint("https://d.example/hook", []string{"estimate.sent"}, false)
	enq := &captureEnqueuer{}

	dispatcher := &notify.Dispatcher{Q: st, Tasks: enq, MaxRetry: 5}
	event := st.addEvent("estimate.sent", `{"estimateId":"x"}`)

	require.NoError(t, dispatcher.Schedule(context.Background(), event))
	require.Len(t, st.deliveries, 2)
	require.Len(t, enq.tasks, 2)
	for _, task := range enq.tasks {
		require.Equal(t, notify.TaskWebhookDeliver, task.Type())
	}
}

func TestDispatcherIgnoresBlankTopic(t *testing.T) {
	st := newStubNotifyStore()
	dispatcher := &notify.Dispatcher{Q: st, Tasks: &captureEnqueuer{}}
	require.NoError(t, dispatcher.Schedule(context.Background(), store.DomainEvent{Topic: "  "}))
	require.Empty(t, st.deliveries)
}

func TestDelivererSignsAndMarksDelivered(t *testing.T) {
	type recorded struct {
		header http.Header
		body   []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	st := newStubNotifyStore()
	ep := st.addEndpoint(srv.URL, []string{"estimate.sent"}, true)
	ev := st.addEvent("estimate.sent", `{"estimateId":"x","total":"85.87"}`)
	del, err := st.InsertDelivery(context.Background(), ep.ID, ev.ID)
	require.NoError(t, err)

	deliverer := &notify.Deliverer{Q: st, Client: srv.Client(), Logger: zerolog.Nop()}
	task, err := notify.NewDeliveryTask(del.ID)
	require.NoError(t, err)
	require.NoError(t, deliverer.HandleTask(context.Background(), task))

	record := <-received
	require.Equal(t, "application/json", record.header.Get("Content-Type"))
	require.Equal(t, ev.ID.String(), record.header.Get("X-Event-ID"))
	require.Equal(t, del.ID.String(), record.header.Get("X-Delivery-ID"))

	ts, err := strconv.ParseInt(record.header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(ep.Secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "."))
	mac.Write(record.body)
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), record.header.Get("X-Signature"))

	var body struct {
		EventID string          `json:"eventId"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(record.body, &body))
	require.Equal(t, "estimate.sent", body.Topic)
	require.JSONEq(t, string(ev.Payload), string(body.Data))

	require.Equal(t, "delivered", st.deliveries[del.ID].Status)
}

func TestDelivererMarksFailureAndRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	st := newStubNotifyStore()
	ep := st.addEndpoint(srv.URL, []string{"estimate.sent"}, true)
	ev := st.addEvent("estimate.sent", `{}`)
	del, err := st.InsertDelivery(context.Background(), ep.ID, ev.ID)
	require.NoError(t, err)

	deliverer := &notify.Deliverer{Q: st, Client: srv.Client(), Logger: zerolog.Nop()}
	task, err := notify.NewDeliveryTask(del.ID)
	require.NoError(t, err)
	err = deliverer.HandleTask(context.Background(), task)
	require.Error(t, err)

	marked := st.deliveries[del.ID]
	require.Equal(t, "failed", marked.Status)
	require.Contains(t, marked.LastError, "502")
	require.Equal(t, int32(1), marked.Attempts)
}

func TestDelivererSkipsInactiveEndpoint(t *testing.T) {
	st := newStubNotifyStore()
	ep := st.addEndpoint("https://gone.example/hook", []string{"estimate.sent"}, false)
	ev := st.addEvent("estimate.sent", `{}`)
	del, err := st.InsertDelivery(context.Background(), ep.ID, ev.ID)
	require.NoError(t, err)

	deliverer := &notify.Deliverer{Q: st, Logger: zerolog.Nop()}
	task, err := notify.NewDeliveryTask(del.ID)
	require.NoError(t, err)
	require.NoError(t, deliverer.HandleTask(context.Background(), task))
	require.Equal(t, "skipped", st.deliveries[del.ID].Status)
}

func TestDelivererAlreadyDelivered(t *testing.T) {
	st := newStubNotifyStore()
	ep := st.addEndpoint("https://a.example/hook", []string{"estimate.sent"}, true)
	ev := st.addEvent("estimate.sent", `{}`)
	del, err := st.InsertDelivery(context.Background(), ep.ID, ev.ID)
	require.NoError(t, err)
	d := st.deliveries[del.ID]
	d.Status = "delivered"
	st.deliveries[del.ID] = d

	deliverer := &notify.Deliverer{Q: st, Logger: zerolog.Nop()}
	task, err := notify.NewDeliveryTask(del.ID)
	require.NoError(t, err)
	require.NoError(t, deliverer.HandleTask(context.Background(), task))
	require.Empty(t, st.marked)
}
