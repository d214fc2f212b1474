package roster

// Event topics published by the roster module.
const (
	// TopicEmployeeEnrolled is published after a successful enrollment.
	// Payload: *Employee.
	TopicEmployeeEnrolled = "roster.employee.enrolled"
)
