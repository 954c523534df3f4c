package coordinator

import (
	"github.com/huykn/cache-coordinator/types"
)

// pendingTable holds at most one outstanding request per key: the one with
// the highest priority seen since the key was last drained.
// It is not safe for concurrent use; the coordinator guards it.
type pendingTable struct {
	requests map[string]types.UpdateRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{requests: make(map[string]types.UpdateRequest)}
}

// merge stores req unless an entry of equal or higher priority already exists.
// It reports whether req was stored.
func (pt *pendingTable) merge(req types.UpdateRequest) bool {
	existing, ok := pt.requests[req.Key]
	if ok && req.Priority <= existing.Priority {
		return false
	}
	pt.requests[req.Key] = req
	return true
}

func (pt *pendingTable) get(key string) (types.UpdateRequest, bool) {
	req, ok := pt.requests[key]
	return req, ok
}

// take removes and returns every entry for which match returns true.
func (pt *pendingTable) take(match func(types.UpdateRequest) bool) []types.UpdateRequest {
	var taken []types.UpdateRequest
	for key, req := range pt.requests {
		if match(req) {
			taken = append(taken, req)
			delete(pt.requests, key)
		}
	}
	return taken
}

func (pt *pendingTable) len() int {
	return len(pt.requests)
}

func (pt *pendingTable) clear() {
	pt.requests = make(map[string]types.UpdateRequest)
}

func isCritical(req types.UpdateRequest) bool {
	return req.Priority == types.PriorityCritical
}

func isNotCritical(req types.UpdateRequest) bool {
	return req.Priority != types.PriorityCritical
}
