package domain

// ItemStatus is the fixed status enumeration for sprint items.
type ItemStatus string

const (
	// StatusPending marks work not yet started.
	StatusPending ItemStatus = "pending"
	// StatusInProgress marks work underway.
	StatusInProgress ItemStatus = "in_progress"
	// StatusCompleted marks finished work.
	StatusCompleted ItemStatus = "completed"
	// StatusDesignCompleted marks the design phase done for the item.
	StatusDesignCompleted ItemStatus = "design_completed"
	// StatusExecuteCompleted marks the execute phase done for the item.
	StatusExecuteCompleted ItemStatus = "execute_completed"
	// StatusReportCompleted marks the report phase done for the item.
	StatusReportCompleted ItemStatus = "report_completed"
	// StatusLearnCompleted marks the learn phase done for the item.
	StatusLearnCompleted ItemStatus = "learn_completed"
)

// IsValid reports whether s is part of the fixed enumeration.
func (s ItemStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted,
		StatusDesignCompleted, StatusExecuteCompleted,
		StatusReportCompleted, StatusLearnCompleted:
		return true
	}
	return false
}

// SprintItem is one unit of sprint work as stored in the sprints document.
type SprintItem struct {
	ItemID        string `json:"item_id"`
	Task          string `json:"task"`
	Objective     string `json:"objective"`
	SuccessMetric string `json:"success_metric"`
	Status        string `json:"status"`
	Assignee      string `json:"assignee"`
	Notes         string `json:"notes,omitempty"`
}

// Sprint groups items under a sprint goal.
type Sprint struct {
	SprintID string       `json:"sprint_id"`
	Title    string       `json:"title"`
	Goal     string       `json:"goal"`
	Items    []SprintItem `json:"items"`
}
