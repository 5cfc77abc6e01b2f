package metrics

// Operation names passed to Recorder implementations.
const (
	// OpTransfer is one upload of a media file.
	OpTransfer = "transfer"
	// OpPollQuery is one progress query against the detection service.
	OpPollQuery = "poll_query"
	// OpReconcile is parsing of a terminal payload.
	OpReconcile = "reconcile"
	// OpSession is one complete upload-and-poll lifecycle.
	OpSession = "session"
	// OpSubmit is one violation record submission.
	OpSubmit = "submit"
	// OpDbInsert is a datastore insert.
	OpDbInsert = "db_insert"
	// OpDbQuery is a datastore read.
	OpDbQuery = "db_query"
	// OpMQTTPublish is a publish of a saved record.
	OpMQTTPublish = "mqtt_publish"
	// OpNotify is a push notification delivery.
	OpNotify = "notify"
)

// Status values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

// Session outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeReset     = "reset"
)

// Histogram bucket parameters.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0
	// BucketStart1KB is the starting bucket for 1KB histograms (1KB to ~1GB range).
	BucketStart1KB = 1024.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor4 covers byte sizes from kilobytes up to gigabytes.
	BucketFactor4 = 4

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
