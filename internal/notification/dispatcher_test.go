package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/throttler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	sent  []*codec.AlertEvent
	name  string
	err   error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Send(_ context.Context, a *codec.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, a)
	return nil
}

func recordFor(t *testing.T, a *codec.AlertEvent) messagelog.Record {
	t.Helper()
	data, err := codec.EncodeAlertEvent(a)
	require.NoError(t, err)
	return messagelog.Record{Topic: "alerts.raw", Key: a.ServiceName, Value: data}
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	sinkA := &recordingSink{name: "a"}
	sinkB := &recordingSink{name: "b"}
	th := throttler.New(throttler.Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 100})
	d := New(th, []Sink{sinkA, sinkB}, zerolog.Nop())

	alert := &codec.AlertEvent{AlertID: "a1", ServiceName: "payments-api", AlertType: "CPU_HIGH", Status: codec.StatusActive}
	err := d.Handle(context.Background(), recordFor(t, alert))
	require.NoError(t, err)

	require.Len(t, sinkA.sent, 1)
	require.Len(t, sinkB.sent, 1)
	assert.Equal(t, "a1", sinkA.sent[0].AlertID)
}

func TestDispatcherSuppressesDuplicates(t *testing.T) {
	sink := &recordingSink{name: "a"}
	th := throttler.New(throttler.Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 100})
	d := New(th, []Sink{sink}, zerolog.Nop())

	alert := &codec.AlertEvent{AlertID: "a1", ServiceName: "payments-api", AlertType: "CPU_HIGH", Status: codec.StatusActive}
	require.NoError(t, d.Handle(context.Background(), recordFor(t, alert)))
	require.NoError(t, d.Handle(context.Background(), recordFor(t, alert)))

	assert.Len(t, sink.sent, 1, "the duplicate within the window should have been throttled")
}

func TestDispatcherDropsUndecodableRecords(t *testing.T) {
	sink := &recordingSink{name: "a"}
	th := throttler.New(throttler.Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 100})
	d := New(th, []Sink{sink}, zerolog.Nop())

	err := d.Handle(context.Background(), messagelog.Record{Topic: "alerts.raw", Value: []byte("not json")})
	assert.NoError(t, err, "an undecodable record must not fail the consumer")
	assert.Empty(t, sink.sent)
}

func TestDispatcherContinuesAfterSinkFailure(t *testing.T) {
	failing := &recordingSink{name: "failing", err: assertError("boom")}
	healthy := &recordingSink{name: "healthy"}
	th := throttler.New(throttler.Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 100})
	d := New(th, []Sink{failing, healthy}, zerolog.Nop())

	alert := &codec.AlertEvent{AlertID: "a1", ServiceName: "payments-api", AlertType: "CPU_HIGH"}
	err := d.Handle(context.Background(), recordFor(t, alert))

	require.NoError(t, err, "a sink failure must not fail the record")
	assert.Len(t, healthy.sent, 1)
}
