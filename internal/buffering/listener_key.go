package buffering

import "fmt"

// ListenerKey is the coalescing identity for discovered objects: jobs that
// produce the same key feed the same listener and share one batching
// window. KeyPrefix is deliberately not part of the identity — a prefix
// narrows what a worker emits, not where the emitted objects coalesce.
// The secret is part of the identity so rotated credentials get their own
// listener.
type ListenerKey struct {
	Dataset         string // empty when the client did not name one
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Tag returns a stable human-readable identifier for logging.
// It never contains the secret.
func (k ListenerKey) Tag() string {
	dataset := k.Dataset
	if dataset == "" {
		dataset = "default"
	}
	return fmt.Sprintf("%s-%s-%s", dataset, k.AccessKeyID, k.Bucket)
}
