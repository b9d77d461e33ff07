package ingest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"dealer-crm/internal/audit"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/metrics"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/vapi"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	logs        *calllogs.MemoryRepo
	events      *audit.MemoryRepo
	dealerships *tenancy.MemoryRepo
	stats       *recordingInvalidator
	metrics     *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logs := calllogs.NewMemoryRepo()
	return &fixture{
		logs:        logs,
		events:      audit.NewMemoryRepo(),
		dealerships: tenancy.NewMemoryRepo(logs),
		stats:       &recordingInvalidator{},
		metrics:     metrics.New(prometheus.NewRegistry()),
	}
}

func (f *fixture) service(opts ...func(*Deps)) *Service {
	d := Deps{
		Logs:        f.logs,
		Audit:       audit.NewService(f.events),
		Dealerships: f.dealerships,
		Classifier:  ExplicitClassifier{},
		Stats:       f.stats,
		Metrics:     f.metrics,
	}
	for _, o := range opts {
		o(&d)
	}
	return NewService(d)
}

func (f *fixture) dealership(t *testing.T, name, phone string) tenancy.Dealership {
	t.Helper()
	d, err := f.dealerships.Create(context.Background(), tenancy.Dealership{Name: name, Phone: phone})
	require.NoError(t, err)
	return d
}

func (f *fixture) eventsOfType(typ audit.EventType) []audit.Event {
	var out []audit.Event
	for _, e := range f.events.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingInvalidator) calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

type failingLogs struct {
	calllogs.Repository
}

func (failingLogs) GetByCallID(ctx context.Context, callID string) (calllogs.CallLog, error) {
	return calllogs.CallLog{}, calllogs.ErrNotFound
}

func (failingLogs) Upsert(ctx context.Context, p calllogs.Patch) (calllogs.CallLog, bool, error) {
	return calllogs.CallLog{}, false, errors.New("connection refused")
}

func deliver(body string) Delivery {
	return Delivery{Body: []byte(body), Path: "/webhook", Method: "POST", RemoteIP: "10.0.0.1"}
}

func TestIngest_CreatesThenMerges(t *testing.T) {
	f := newFixture(t)
	d := f.dealership(t, "Downtown Motors", "+15559876001")
	svc := f.service()
	ctx := context.Background()

	first := svc.Ingest(ctx, deliver(`{"message":{"call_id":"abc-1","status":"initiated","dealership_id":`+strconv.FormatInt(d.ID, 10)+`}}`))
	require.Equal(t, OutcomeProcessed, first.Outcome)
	assert.True(t, first.Created)

	second := svc.Ingest(ctx, deliver(`{"message":{"call_id":"abc-1","status":"completed","duration":125,"transcript":"hello"}}`))
	require.Equal(t, OutcomeProcessed, second.Outcome)
	assert.False(t, second.Created)
	assert.Equal(t, first.CallLogID, second.CallLogID)

	assert.Equal(t, 1, f.logs.Len())
	row, err := f.logs.GetByCallID(ctx, "abc-1")
	require.NoError(t, err)
	assert.Equal(t, calllogs.StatusCompleted, row.Status)
	assert.Equal(t, 125, row.Duration)
	assert.Equal(t, "hello", row.Transcript)
	require.NotNil(t, row.DealershipID)
	assert.Equal(t, d.ID, *row.DealershipID, "later delivery without a dealership must not clear it")

	assert.Equal(t, []int64{d.ID, d.ID}, f.stats.calls())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.WebhookDeliveries.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallLogUpserts.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallLogUpserts.WithLabelValues("updated")))
}

func TestIngest_FlatBodyCreatesThenMerges(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	first := svc.Ingest(ctx, deliver(`{"call_id":"abc-1","status":"initiated","duration":null}`))
	require.Equal(t, OutcomeProcessed, first.Outcome)
	assert.True(t, first.Created)

	second := svc.Ingest(ctx, deliver(`{"call_id":"abc-1","status":"completed","duration":300,"department":"sales"}`))
	require.Equal(t, OutcomeProcessed, second.Outcome)
	assert.False(t, second.Created)

	assert.Equal(t, 1, f.logs.Len())
	row, err := f.logs.GetByCallID(ctx, "abc-1")
	require.NoError(t, err)
	assert.Equal(t, calllogs.StatusCompleted, row.Status)
	assert.Equal(t, 300, row.Duration)
	require.NotNil(t, row.Department)
	assert.Equal(t, calllogs.DepartmentSales, *row.Department)
}

func TestIngest_AttributesByRecipientNumber(t *testing.T) {
	f := newFixture(t)
	f.dealership(t, "Other", "+15550000000")
	d := f.dealership(t, "Downtown Motors", "+15559876001")
	svc := f.service()

	res := svc.Ingest(context.Background(), deliver(`{"message":{"call_id":"r-1","recipient_number":"(555) 987-6001"}}`))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.DealershipID)
	assert.Equal(t, d.ID, *res.DealershipID)
}

func TestIngest_ReassignmentInvalidatesBothDealerships(t *testing.T) {
	f := newFixture(t)
	a := f.dealership(t, "Downtown Motors", "+15559876001")
	b := f.dealership(t, "Uptown Motors", "+15559876002")
	svc := f.service()
	ctx := context.Background()

	svc.Ingest(ctx, deliver(`{"message":{"call_id":"move-1","recipient_number":"+15559876001"}}`))
	assert.Equal(t, []int64{a.ID}, f.stats.calls())

	res := svc.Ingest(ctx, deliver(`{"message":{"call_id":"move-1","dealership_id":`+strconv.FormatInt(b.ID, 10)+`}}`))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.DealershipID)
	assert.Equal(t, b.ID, *res.DealershipID)
	assert.Equal(t, []int64{a.ID, b.ID, a.ID}, f.stats.calls())
}

func TestIngest_UnknownDealershipIsStoredUnattributed(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	res := svc.Ingest(context.Background(), deliver(`{"message":{"call_id":"u-1","dealership_id":999}}`))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Nil(t, res.DealershipID)
	assert.Empty(t, f.stats.calls())
}

func TestIngest_ClassifiesDepartment(t *testing.T) {
	f := newFixture(t)
	svc := f.service(func(d *Deps) { d.Classifier = HeuristicClassifier{} })
	ctx := context.Background()

	svc.Ingest(ctx, deliver(`{"message":{"call_id":"c-1","summary":"Customer needs an oil change and a brake inspection."}}`))
	row, err := f.logs.GetByCallID(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, row.Department)
	assert.Equal(t, calllogs.DepartmentService, *row.Department)

	// a later delivery with nothing to classify keeps the stored department
	svc.Ingest(ctx, deliver(`{"message":{"call_id":"c-1","status":"completed"}}`))
	row, err = f.logs.GetByCallID(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, row.Department)
	assert.Equal(t, calllogs.DepartmentService, *row.Department)
}

func TestIngest_MissingCallIDIsPartial(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	for _, body := range []string{``, `{}`, `not json`, `{"message":{"status":"completed"}}`} {
		res := svc.Ingest(context.Background(), deliver(body))
		assert.Equal(t, OutcomePartial, res.Outcome, body)
	}
	assert.Equal(t, 0, f.logs.Len())
	assert.Len(t, f.eventsOfType(audit.EventTypeWebhookDelivery), 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.WebhookDeliveries.WithLabelValues("partial")))
}

func TestIngest_WriteFailureIsStillAudited(t *testing.T) {
	f := newFixture(t)
	svc := f.service(func(d *Deps) { d.Logs = failingLogs{} })

	res := svc.Ingest(context.Background(), deliver(`{"message":{"call_id":"abc-1"}}`))
	assert.Equal(t, OutcomeWriteFailed, res.Outcome)
	assert.Error(t, res.Err)

	deliveries := f.eventsOfType(audit.EventTypeWebhookDelivery)
	require.Len(t, deliveries, 1)
	assert.JSONEq(t, `{"message":{"call_id":"abc-1"}}`, string(deliveries[0].Payload))

	outcomes := f.eventsOfType(audit.EventTypeWebhookOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "write_failed", outcomes[0].Outcome)
	assert.Equal(t, "abc-1", outcomes[0].CallID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookDeliveries.WithLabelValues("write_failed")))
}

func TestIngest_TruncatedBodyIsNotParsed(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	d := deliver(`{"message":{"call_id":"abc-1","transcript":"hel`)
	d.Truncated = true
	res := svc.Ingest(context.Background(), d)
	assert.Equal(t, OutcomeTooLarge, res.Outcome)
	assert.Equal(t, 0, f.logs.Len())

	assert.Len(t, f.eventsOfType(audit.EventTypeWebhookDelivery), 1)
	outcomes := f.eventsOfType(audit.EventTypeWebhookOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "body_too_large", outcomes[0].Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookDeliveries.WithLabelValues("body_too_large")))
}

func TestIngest_AuditFailureDoesNotBlockWrite(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("audit down")
	svc := f.service()

	res := svc.Ingest(context.Background(), deliver(`{"message":{"call_id":"abc-1"}}`))
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, 1, f.logs.Len())
}

func TestIngest_NonJSONBodyIsAuditedAsText(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	svc.Ingest(context.Background(), deliver(`call_id=abc-1`))
	deliveries := f.eventsOfType(audit.EventTypeWebhookDelivery)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "call_id=abc-1", deliveries[0].RawBody)
	assert.Empty(t, deliveries[0].Payload)
}

func TestIngest_RedactsCredentials(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	d := deliver(`{}`)
	d.Headers = map[string][]string{"Authorization": {"Bearer secret"}, "Content-Type": {"application/json"}}
	svc.Ingest(context.Background(), d)

	deliveries := f.eventsOfType(audit.EventTypeWebhookDelivery)
	require.Len(t, deliveries, 1)
	assert.NotContains(t, string(deliveries[0].Headers), "Bearer secret")
	assert.Contains(t, string(deliveries[0].Headers), "application/json")
	assert.Equal(t, []string{"Bearer secret"}, d.Headers["Authorization"])
}

func TestIngest_SignatureVerification(t *testing.T) {
	secret := []byte("whsec")
	verify := func(sig string, body []byte) bool { return vapi.VerifySignature(secret, sig, body) }

	f := newFixture(t)
	svc := f.service(func(d *Deps) { d.Verify = verify })
	body := `{"message":{"call_id":"abc-1"}}`

	bad := deliver(body)
	bad.Signature = "deadbeef"
	res := svc.Ingest(context.Background(), bad)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, 0, f.logs.Len())
	assert.Len(t, f.eventsOfType(audit.EventTypeWebhookDelivery), 1, "rejected deliveries are audited too")

	good := deliver(body)
	good.Signature = vapi.Sign(secret, []byte(body))
	res = svc.Ingest(context.Background(), good)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, 1, f.logs.Len())
}

func TestIngest_ConcurrentDeliveriesShareOneRow(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Ingest(context.Background(), deliver(`{"message":{"call_id":"race-1","status":"in-progress"}}`))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.logs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallLogUpserts.WithLabelValues("created")))
	assert.Equal(t, 19.0, testutil.ToFloat64(f.metrics.CallLogUpserts.WithLabelValues("updated")))
}

func TestResolver(t *testing.T) {
	repo := tenancy.NewMemoryRepo()
	ctx := context.Background()
	a, err := repo.Create(ctx, tenancy.Dealership{Name: "A", Phone: "+15551110000"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, tenancy.Dealership{Name: "B", Phone: "+15552220000"})
	require.NoError(t, err)

	r := NewDealershipResolver(repo)

	got, err := r.Resolve(ctx, &a.ID, "+15552220000")
	require.NoError(t, err)
	assert.Equal(t, a.ID, *got, "explicit id wins over the dialed number")

	missing := int64(404)
	got, err = r.Resolve(ctx, &missing, "+15552220000")
	require.NoError(t, err)
	assert.Equal(t, b.ID, *got)

	got, err = r.Resolve(ctx, nil, "+15553330000")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = NewDealershipResolver(nil).Resolve(ctx, &a.ID, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}
