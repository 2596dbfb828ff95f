package metrics

import (
	"time"

	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	obserrors "github.com/acadvault/acadvault-api/internal/observability/errors"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// AuthMetric captures a sign-in, sign-up or sign-out attempt for metric emission.
type AuthMetric struct {
	Operation string
	Duration  time.Duration
	Err       error
}

// EmitAuthOperation emits standardised auth operation metrics.
func EmitAuthOperation(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    ResultSuccess,
	}
	if in.Err != nil {
		tags["result"] = ResultError
		if code := apperrors.GetCode(in.Err); code != "" {
			tags["error_code"] = string(code)
		} else if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth."+in.Operation, 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.duration", in.Duration, CloneTags(tags))
	}
}

// EmitGuardDecision counts access guard outcomes per route pattern.
func EmitGuardDecision(sink statsd.Sink, decision, route string) {
	if sink == nil {
		return
	}
	sink.Count("auth.guard.decision", 1, map[string]string{"decision": decision, "route": route})
}

// EmitProfileFetch records how a profile lookup ended and how long it took.
func EmitProfileFetch(sink statsd.Sink, status string, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"status": status}
	sink.Count("auth.profile.fetch", 1, tags)
	sink.Timing("auth.profile.fetch_duration", d, CloneTags(tags))
}

// EmitClientStores reports how many per-browser session stores are live.
func EmitClientStores(sink statsd.Sink, live int) {
	if sink == nil {
		return
	}
	sink.Gauge("auth.client_stores", float64(live), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
