package reporting

import (
	"math"

	"dealer-crm/internal/calllogs"
)

// DashboardStats are the headline numbers for one dealership. "Other" is whatever
// is left after the three known departments, which includes calls with no
// department at all.
type DashboardStats struct {
	TotalCalls      int     `json:"total_calls"`
	CompletedCalls  int     `json:"completed_calls"`
	PercentAnswered int     `json:"percent_answered"`
	TotalMinutes    float64 `json:"total_minutes"`

	SalesCalls   int `json:"sales_calls"`
	ServiceCalls int `json:"service_calls"`
	PartsCalls   int `json:"parts_calls"`
	OtherCalls   int `json:"other_calls"`

	SalesMinutes   float64 `json:"sales_minutes"`
	ServiceMinutes float64 `json:"service_minutes"`
	PartsMinutes   float64 `json:"parts_minutes"`
	OtherMinutes   float64 `json:"other_minutes"`
}

// ComputeStats derives dashboard numbers from raw counters.
func ComputeStats(a calllogs.Aggregate) DashboardStats {
	sales := a.ByDepartment[calllogs.DepartmentSales]
	service := a.ByDepartment[calllogs.DepartmentService]
	parts := a.ByDepartment[calllogs.DepartmentParts]

	out := DashboardStats{
		TotalCalls:     a.Total,
		CompletedCalls: a.Completed,
		TotalMinutes:   minutes(a.DurationSeconds),

		SalesCalls:   sales.Calls,
		ServiceCalls: service.Calls,
		PartsCalls:   parts.Calls,
		OtherCalls:   a.Total - sales.Calls - service.Calls - parts.Calls,

		SalesMinutes:   minutes(sales.DurationSeconds),
		ServiceMinutes: minutes(service.DurationSeconds),
		PartsMinutes:   minutes(parts.DurationSeconds),
		OtherMinutes:   minutes(a.DurationSeconds - sales.DurationSeconds - service.DurationSeconds - parts.DurationSeconds),
	}
	if a.Total > 0 {
		out.PercentAnswered = int(math.Round(float64(a.Completed) / float64(a.Total) * 100))
	}
	return out
}

// minutes converts seconds to minutes rounded to one decimal place.
func minutes(seconds int64) float64 {
	return math.Round(float64(seconds)/60*10) / 10
}
