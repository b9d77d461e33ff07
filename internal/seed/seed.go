package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dealer-crm/internal/auth"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/ingest"
	"dealer-crm/internal/rbac"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/users"

	"github.com/brianvoe/gofakeit/v6"
)

// ErrAlreadySeeded is returned when the admin account exists already.
var ErrAlreadySeeded = errors.New("seed: database already seeded")

const (
	AdminEmail      = "test@example.com"
	AgentEmail      = "agent@example.com"
	DefaultPassword = "password"
)

type Options struct {
	TenantName      string
	DealershipName  string
	DealershipPhone string
	Region          string
	Password        string
	Customers       int
	// FakerSeed makes the generated customers reproducible. Zero picks a random seed.
	FakerSeed int64
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TenantName == "" {
		o.TenantName = "Test Dealership"
	}
	if o.DealershipName == "" {
		o.DealershipName = "Test Dealership"
	}
	if o.DealershipPhone == "" {
		o.DealershipPhone = "555-123-4567"
	}
	if o.Region == "" {
		o.Region = "US"
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.Customers < 0 {
		o.Customers = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Result struct {
	Tenant     tenancy.Tenant
	Dealership tenancy.Dealership
	Users      []users.User
	CallLogs   int
	Customers  int
}

type Seeder struct {
	Tenancy  tenancy.Repository
	Users    users.Repository
	CallLogs calllogs.Repository
	Log      *slog.Logger
}

// Run provisions one tenant with one dealership, an admin and an agent login, one
// sample call per department plus one without a department, and fake customers.
func (s *Seeder) Run(ctx context.Context, opts Options) (Result, error) {
	opts = opts.withDefaults()
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	if _, err := s.Users.FindByEmail(ctx, AdminEmail); err == nil {
		return Result{}, ErrAlreadySeeded
	} else if !errors.Is(err, users.ErrNotFound) {
		return Result{}, err
	}

	var res Result
	var err error
	res.Tenant, err = s.Tenancy.CreateTenant(ctx, tenancy.Tenant{Name: opts.TenantName})
	if err != nil {
		return Result{}, fmt.Errorf("create tenant: %w", err)
	}
	res.Dealership, err = s.Tenancy.Create(ctx, tenancy.Dealership{
		TenantID: res.Tenant.ID,
		Name:     opts.DealershipName,
		Address:  "123 Test Street",
		City:     "Test City",
		State:    "TS",
		ZipCode:  "12345",
		Phone:    ingest.NormalizePhone(opts.DealershipPhone, opts.Region),
		Email:    "test@dealership.com",
		Website:  "https://testdealership.com",
	})
	if err != nil {
		return Result{}, fmt.Errorf("create dealership: %w", err)
	}
	log.Info("seeded dealership", "dealership_id", res.Dealership.ID, "phone", res.Dealership.Phone)

	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return Result{}, err
	}
	for _, u := range []users.User{
		{Name: "Test Admin", Email: AdminEmail, Role: rbac.RoleAdmin},
		{Name: "Test Agent", Email: AgentEmail, Role: rbac.RoleAgent},
	} {
		u.DealershipID = res.Dealership.ID
		u.TenantID = res.Tenant.ID
		u.PasswordHash = hash
		created, err := s.Users.Create(ctx, u)
		if err != nil {
			return Result{}, fmt.Errorf("create user %s: %w", u.Email, err)
		}
		res.Users = append(res.Users, created)
	}

	for _, p := range sampleCalls(res.Dealership.ID, opts.Now().UTC()) {
		if _, _, err := s.CallLogs.Upsert(ctx, p); err != nil {
			return Result{}, fmt.Errorf("seed call %s: %w", p.CallID, err)
		}
		res.CallLogs++
	}

	faker := gofakeit.New(opts.FakerSeed)
	for i := 0; i < opts.Customers; i++ {
		c := tenancy.Customer{
			DealershipID: res.Dealership.ID,
			FirstName:    faker.FirstName(),
			LastName:     faker.LastName(),
			Email:        faker.Email(),
			Phone:        ingest.NormalizePhone(faker.Phone(), opts.Region),
			Address:      faker.Street(),
			City:         faker.City(),
			State:        faker.StateAbr(),
			ZipCode:      faker.Zip(),
			Notes:        faker.Sentence(8),
		}
		if _, err := s.Tenancy.CreateCustomer(ctx, c); err != nil {
			return Result{}, fmt.Errorf("create customer: %w", err)
		}
		res.Customers++
	}

	log.Info("seed complete",
		"tenant_id", res.Tenant.ID,
		"dealership_id", res.Dealership.ID,
		"users", len(res.Users),
		"call_logs", res.CallLogs,
		"customers", res.Customers,
	)
	return res, nil
}

type sampleCall struct {
	callID     string
	seq        int
	dept       calllogs.Department
	ago        time.Duration
	length     time.Duration
	summary    string
	transcript string
}

var samples = []sampleCall{
	{
		callID: "test-sales-call-001", seq: 1, dept: calllogs.DepartmentSales,
		ago: 2 * time.Hour, length: 5 * time.Minute,
		summary:    "Customer inquired about purchasing a new Toyota Camry and discussed financing options.",
		transcript: "Customer: I'm interested in buying a new car.\nAgent: Great! What model are you interested in?\nCustomer: The Toyota Camry.",
	},
	{
		callID: "test-service-call-001", seq: 2, dept: calllogs.DepartmentService,
		ago: time.Hour, length: 8 * time.Minute,
		summary:    "Customer scheduled a maintenance appointment for oil change and tire rotation.",
		transcript: "Customer: I need to bring my car in for service.\nAgent: What type of service do you need?\nCustomer: Oil change and tire rotation.",
	},
	{
		callID: "test-parts-call-001", seq: 3, dept: calllogs.DepartmentParts,
		ago: 30 * time.Minute, length: 4 * time.Minute,
		summary:    "Customer inquired about availability and pricing for replacement windshield wipers.",
		transcript: "Customer: Do you have windshield wipers for a 2018 Toyota Corolla?\nAgent: Yes, we do have those in stock.",
	},
	{
		callID: "test-general-call-001", seq: 4,
		ago: 15 * time.Minute, length: 3 * time.Minute,
		summary:    "General inquiry about dealership hours and location.",
		transcript: "Customer: What are your hours today?\nAgent: We're open from 9 AM to 7 PM today.",
	},
}

func sampleCalls(dealershipID int64, now time.Time) []calllogs.Patch {
	out := make([]calllogs.Patch, 0, len(samples))
	for _, s := range samples {
		started := now.Add(-s.ago)
		ended := started.Add(s.length)
		duration := int(s.length / time.Second)
		status := calllogs.StatusCompleted
		direction := calllogs.DirectionInbound
		caller := fmt.Sprintf("+1555123400%d", s.seq)
		recipient := fmt.Sprintf("+1555987600%d", s.seq)
		transcript := s.transcript
		recording := fmt.Sprintf("https://example.com/recordings/%s.mp3", s.callID)
		dealership := dealershipID
		meta, _ := json.Marshal(map[string]any{
			"summary":       s.summary,
			"transcript":    s.transcript,
			"recording_url": recording,
			"success":       true,
			"frustration":   "low",
		})

		p := calllogs.Patch{
			CallID:          s.callID,
			Status:          &status,
			Direction:       &direction,
			CallerNumber:    &caller,
			RecipientNumber: &recipient,
			Duration:        &duration,
			CallStartedAt:   &started,
			CallEndedAt:     &ended,
			DealershipID:    &dealership,
			Transcript:      &transcript,
			RecordingURL:    &recording,
			Metadata:        meta,
		}
		if s.dept != "" {
			dept := s.dept
			p.Department = &dept
		}
		out = append(out, p)
	}
	return out
}
