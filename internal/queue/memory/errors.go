package memory

import "errors"

// ErrTopicClosed is returned by Publish once the topic, or the bus that owns it, is closed.
var ErrTopicClosed = errors.New("memory bus: topic closed")
