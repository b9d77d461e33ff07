package reporting

import (
	"testing"

	"dealer-crm/internal/calllogs"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats_MixedDepartments(t *testing.T) {
	agg := calllogs.Aggregate{
		Total:           4,
		Completed:       3,
		DurationSeconds: 300 + 480 + 240 + 180,
		ByDepartment: map[calllogs.Department]calllogs.DepartmentTotals{
			calllogs.DepartmentSales:   {Calls: 1, DurationSeconds: 300},
			calllogs.DepartmentService: {Calls: 1, DurationSeconds: 480},
			calllogs.DepartmentParts:   {Calls: 1, DurationSeconds: 240},
		},
	}

	s := ComputeStats(agg)
	assert.Equal(t, 4, s.TotalCalls)
	assert.Equal(t, 75, s.PercentAnswered)
	assert.Equal(t, 20.0, s.TotalMinutes)
	assert.Equal(t, 1, s.OtherCalls)
	assert.Equal(t, 5.0, s.SalesMinutes)
	assert.Equal(t, 8.0, s.ServiceMinutes)
	assert.Equal(t, 4.0, s.PartsMinutes)
	assert.Equal(t, 3.0, s.OtherMinutes)
	assert.Equal(t, s.TotalCalls, s.SalesCalls+s.ServiceCalls+s.PartsCalls+s.OtherCalls)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(calllogs.Aggregate{})
	assert.Equal(t, DashboardStats{}, s)
}

func TestComputeStats_Rounding(t *testing.T) {
	s := ComputeStats(calllogs.Aggregate{Total: 3, Completed: 2, DurationSeconds: 125})
	assert.Equal(t, 67, s.PercentAnswered)
	assert.Equal(t, 2.1, s.TotalMinutes)
	assert.Equal(t, 3, s.OtherCalls)

	s = ComputeStats(calllogs.Aggregate{Total: 3, Completed: 1, DurationSeconds: 33})
	assert.Equal(t, 33, s.PercentAnswered)
	assert.Equal(t, 0.6, s.TotalMinutes)
}
