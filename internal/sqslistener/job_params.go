package sqslistener

// JobParams specify which queue to consume and which objects to act on.
// Events for other buckets or outside the key prefix are ignored.
type JobParams struct {
	Region    string
	Bucket    string
	KeyPrefix string
	QueueURL  string
	Dataset   string // optional; empty means unset
}
