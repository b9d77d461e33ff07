package tenancy

import "time"

type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Dealership is the scoping unit for every piece of dashboard data.
type Dealership struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	ZipCode   string    `json:"zip_code,omitempty"`
	Phone     string    `json:"phone,omitempty"` // E.164 when known
	Email     string    `json:"email,omitempty"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer, Appointment and Interaction are dealership-owned records that the
// dashboard does not read yet. They are provisioned by the seed command and removed
// with their dealership.

type Customer struct {
	ID           int64     `json:"id"`
	DealershipID int64     `json:"dealership_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	State        string    `json:"state,omitempty"`
	ZipCode      string    `json:"zip_code,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Appointment struct {
	ID           int64     `json:"id"`
	DealershipID int64     `json:"dealership_id"`
	CustomerID   int64     `json:"customer_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type Interaction struct {
	ID           int64     `json:"id"`
	DealershipID int64     `json:"dealership_id"`
	CustomerID   int64     `json:"customer_id"`
	Type         string    `json:"type"`
	Notes        string    `json:"notes,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	CreatedAt    time.Time `json:"created_at"`
}
