package generation

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests and dry runs. Responses are
// consumed in order; when the script runs out the last entry repeats.
type MockClient struct {
	mu      sync.Mutex
	script  []MockResponse
	calls   []*Request
	PerCall Usage // usage attributed to every call
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Result *Result
	Err    error
}

// NewMockClient builds a mock with the given script.
func NewMockClient(script ...MockResponse) *MockClient {
	return &MockClient{script: script, PerCall: Usage{InputTokens: 100, OutputTokens: 200, Cost: 0.01}}
}

// Generate pops the next scripted response.
func (m *MockClient) Generate(_ context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, cloneRequest(req))

	if len(m.script) == 0 {
		return nil, fmt.Errorf("mock client: no scripted responses")
	}
	idx := len(m.calls) - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	resp := m.script[idx]
	if resp.Err != nil {
		return nil, resp.Err
	}
	out := *resp.Result
	if out.TierUsed == "" {
		out.TierUsed = req.Tier
	}
	if out.Usage == (Usage{}) {
		out.Usage = m.PerCall
	}
	return &out, nil
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.calls...)
}

// CallCount returns how many times Generate ran.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func cloneRequest(req *Request) *Request {
	cp := *req
	cp.Missing = append(cp.Missing[:0:0], req.Missing...)
	cp.RepairNotes = append(cp.RepairNotes[:0:0], req.RepairNotes...)
	return &cp
}
