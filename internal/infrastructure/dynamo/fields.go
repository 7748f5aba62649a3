package dynamo

// DynamoDB attribute names used in expressions across the repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldStatus    = "status"
	fieldUpdatedAt = "updated_at"
)
