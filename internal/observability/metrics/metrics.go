// Package metrics collects request, turn and tool counters and exposes them
// in Prometheus text format, without pulling in a client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type labelPair struct {
	a, b string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu        sync.Mutex
	requests  map[requestKey]uint64
	latency   map[labelPair]*histogram // handler, method
	turns     map[string]uint64        // status
	toolCalls map[labelPair]uint64     // tool, outcome
	poolWaits map[string]uint64        // provider
}

var std = &collector{
	requests:  make(map[requestKey]uint64),
	latency:   make(map[labelPair]*histogram),
	turns:     make(map[string]uint64),
	toolCalls: make(map[labelPair]uint64),
	poolWaits: make(map[string]uint64),
}

// ObserveHTTPRequest records one HTTP request.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.requests[requestKey{handler, method, strconv.Itoa(status)}]++
	key := labelPair{handler, method}
	hist := std.latency[key]
	if hist == nil {
		hist = newHistogram()
		std.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveTurn records one completed conversation turn by final status.
func ObserveTurn(status string) {
	std.mu.Lock()
	std.turns[status]++
	std.mu.Unlock()
}

// ObserveToolCall records one tool invocation outcome.
func ObserveToolCall(toolName string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	std.mu.Lock()
	std.toolCalls[labelPair{toolName, outcome}]++
	std.mu.Unlock()
}

// ObservePoolExhausted records a failed pool acquisition.
func ObservePoolExhausted(provider string) {
	std.mu.Lock()
	std.poolWaits[provider]++
	std.mu.Unlock()
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler serves the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, std.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("# HELP chainagent_http_requests_total Total HTTP requests processed.\n")
	b.WriteString("# TYPE chainagent_http_requests_total counter\n")
	for _, key := range sortedRequestKeys(c.requests) {
		fmt.Fprintf(&b, "chainagent_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), c.requests[key])
	}

	b.WriteString("# HELP chainagent_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE chainagent_http_request_duration_seconds histogram\n")
	for _, key := range sortedPairKeys(c.latency) {
		hist := c.latency[key]
		for idx, bound := range hist.buckets {
			fmt.Fprintf(&b, "chainagent_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				escape(key.a), escape(key.b), formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "chainagent_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			escape(key.a), escape(key.b), hist.count)
		fmt.Fprintf(&b, "chainagent_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			escape(key.a), escape(key.b), formatFloat(hist.sum))
		fmt.Fprintf(&b, "chainagent_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			escape(key.a), escape(key.b), hist.count)
	}

	b.WriteString("# HELP chainagent_turns_total Completed conversation turns by status.\n")
	b.WriteString("# TYPE chainagent_turns_total counter\n")
	for _, status := range sortedStringKeys(c.turns) {
		fmt.Fprintf(&b, "chainagent_turns_total{status=%q} %d\n", escape(status), c.turns[status])
	}

	b.WriteString("# HELP chainagent_tool_calls_total Tool invocations by tool and outcome.\n")
	b.WriteString("# TYPE chainagent_tool_calls_total counter\n")
	for _, key := range sortedPairCounterKeys(c.toolCalls) {
		fmt.Fprintf(&b, "chainagent_tool_calls_total{tool=%q,outcome=%q} %d\n",
			escape(key.a), escape(key.b), c.toolCalls[key])
	}

	b.WriteString("# HELP chainagent_pool_exhausted_total Failed pool acquisitions by provider.\n")
	b.WriteString("# TYPE chainagent_pool_exhausted_total counter\n")
	for _, provider := range sortedStringKeys(c.poolWaits) {
		fmt.Fprintf(&b, "chainagent_pool_exhausted_total{provider=%q} %d\n", escape(provider), c.poolWaits[provider])
	}

	return b.String()
}

func sortedRequestKeys(m map[requestKey]uint64) []requestKey {
	keys := make([]requestKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].code < keys[j].code
	})
	return keys
}

func sortedPairKeys(m map[labelPair]*histogram) []labelPair {
	keys := make([]labelPair, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sortPairs(keys)
	return keys
}

func sortedPairCounterKeys(m map[labelPair]uint64) []labelPair {
	keys := make([]labelPair, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sortPairs(keys)
	return keys
}

func sortPairs(keys []labelPair) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
}

func sortedStringKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// escape strips newlines; %q handles quote and backslash escaping.
func escape(value string) string {
	return strings.ReplaceAll(value, "\n", "")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
