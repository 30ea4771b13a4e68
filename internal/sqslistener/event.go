package sqslistener

// S3Event is the notification envelope S3 publishes to the queue.
type S3Event struct {
	Records []S3Record `json:"Records"`
}

// S3Record is one event inside the envelope.
type S3Record struct {
	EventName string   `json:"eventName"`
	S3        S3Entity `json:"s3"`
}

// S3Entity names the bucket and object an event refers to.
type S3Entity struct {
	Bucket S3Bucket     `json:"bucket"`
	Object S3ObjectInfo `json:"object"`
}

// S3Bucket carries the bucket name.
type S3Bucket struct {
	Name string `json:"name"`
}

// S3ObjectInfo carries the object key and size.
type S3ObjectInfo struct {
	Key  string `json:"key"`
	Size uint64 `json:"size"`
}
