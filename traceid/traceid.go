// Package traceid generates request trace identifiers and the header
// pair the fuse client stamps onto every outgoing request, grounded on
// the teacher's use of request-scoped UUIDs for cross-service
// correlation (services/gateway middleware and logger fields).
package traceid

import "github.com/google/uuid"

// Header is the primary trace-id header fuse.Client sets when the
// caller hasn't already supplied one.
const Header = "X-Trace-Id"

// AmznHeader mirrors the trace id into the X-Amzn-Trace-Id format some
// downstream load balancers and proxies key on.
const AmznHeader = "X-Amzn-Trace-Id"

// New returns a fresh random trace id.
func New() string {
	return uuid.NewString()
}
