package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

const (
	attrPool    = "pool"
	attrReason  = "reason"
	attrState   = "state"
	attrJobType = "job_type"
	attrSuccess = "success"
	attrMethod  = "method"
	attrRoute   = "route"
	attrStatus  = "status"
)

func poolAttr(name string) attribute.KeyValue      { return attribute.String(attrPool, name) }
func reasonAttr(reason string) attribute.KeyValue  { return attribute.String(attrReason, reason) }
func stateAttr(state string) attribute.KeyValue    { return attribute.String(attrState, state) }
func jobTypeAttr(t string) attribute.KeyValue      { return attribute.String(attrJobType, t) }
func successAttr(success bool) attribute.KeyValue  { return attribute.Bool(attrSuccess, success) }
func methodAttr(method string) attribute.KeyValue  { return attribute.String(attrMethod, method) }
func routeAttr(r *http.Request) attribute.KeyValue { return attribute.String(attrRoute, route(r)) }

// statusAttr groups codes (2xx, 4xx, 5xx) to keep cardinality low.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

// route is the ServeMux pattern that matched, so /jobs/{id}/retry is one
// series regardless of the id.
func route(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
