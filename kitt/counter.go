package kitt

import (
	"strconv"
	"sync/atomic"
)

var requestCounter int64

var tabCounter int64

// NextRequestID a global request ID, shared between all tabs and stages of a request
func NextRequestID() string {
	return strconv.FormatInt(atomic.AddInt64(&requestCounter, 1), 10)
}

// NextTabID a global tab ID
func NextTabID() int64 {
	return atomic.AddInt64(&tabCounter, 1)
}
