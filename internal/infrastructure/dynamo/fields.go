package dynamo

// DynamoDB attribute names used in key and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail    = "email"
	fieldCode     = "code"
	fieldAttempts = "attempts"
	fieldTTL      = "ttl"
)
