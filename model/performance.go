package model

// DepartmentLoad summarizes one department for performance reporting.
type DepartmentLoad struct {
	DepartmentID int     `json:"department_id"`
	WIP          int     `json:"wip"`
	Utilization  float64 `json:"utilization"`
}

// Performance aggregates session KPIs.
type Performance struct {
	TotalCompleted int              `json:"total_completed"`
	OnTime         int              `json:"on_time"`
	Late           int              `json:"late"`
	Cancelled      int              `json:"cancelled"`
	OnTimeRate     float64          `json:"on_time_rate"`
	AverageLead    Millis           `json:"average_lead_time"`
	DeliveredValue float64          `json:"delivered_value"`
	TotalWIP       int              `json:"total_wip"`
	Departments    []DepartmentLoad `json:"departments"`
	// BottleneckID is the department with the highest utilization, 0 when
	// nothing has run yet.
	BottleneckID int `json:"bottleneck_id"`
}
