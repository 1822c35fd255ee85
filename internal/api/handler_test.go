package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kalambet/sage/internal/intent"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/pipeline"
	"github.com/kalambet/sage/internal/retrieval"
)

type fakeService struct {
	mu      sync.Mutex
	queries []pipeline.Query
	topK    int
	// respond overrides the default two-event run.
	respond func(ctx context.Context, q pipeline.Query, sink orchestrator.Sink) (pipeline.Answer, error)
}

func (f *fakeService) Classify(query string) intent.Classification {
	return intent.Classification{Archetype: intent.Understanding, Confidence: 0.8}
}

func (f *fakeService) Retrieve(_ context.Context, query string, topK int) retrieval.Result {
	f.mu.Lock()
	f.topK = topK
	f.mu.Unlock()
	return retrieval.Result{
		Mode:     retrieval.ModeSemantic,
		Passages: []retrieval.Passage{{ID: "p1", Text: "the door is open", Source: "Book", Score: 0.9}},
	}
}

func (f *fakeService) Respond(ctx context.Context, q pipeline.Query, sink orchestrator.Sink) (pipeline.Answer, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(ctx, q, sink)
	}
	if err := sink.Send(ctx, orchestrator.Event{Type: orchestrator.EventContentDelta, RunID: "r1", Text: "hello"}); err != nil {
		return pipeline.Answer{}, err
	}
	if err := sink.Send(ctx, orchestrator.Event{Type: orchestrator.EventPipelineCompleted, RunID: "r1", Text: "hello"}); err != nil {
		return pipeline.Answer{}, err
	}
	return pipeline.Answer{RunID: "r1", Variant: "deep", Text: "hello"}, nil
}

func (f *fakeService) lastTopK() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topK
}

func (f *fakeService) recorded() []pipeline.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Query(nil), f.queries...)
}

func (f *fakeService) Variants() []*orchestrator.Variant {
	reg, err := orchestrator.NewRegistry(orchestrator.BuiltinVariants()...)
	if err != nil {
		panic(err)
	}
	return reg.List()
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	if deps.Service == nil {
		deps.Service = &fakeService{}
	}
	srv := httptest.NewServer(NewHandler(deps))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readEvents(t *testing.T, resp *http.Response) []orchestrator.Event {
	t.Helper()
	var events []orchestrator.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var e orchestrator.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

func errorType(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Type
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{Token: "secret"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, Deps{Token: "secret"})

	resp := post(t, srv.URL+"/v1/classify", `{"query":"why?"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication_error", errorType(t, resp))

	resp = post(t, srv.URL+"/v1/classify", `{"query":"why?"}`, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/classify", `{"query":"why?"}`, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := post(t, srv.URL+"/v1/classify", `{"query":"why?"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPipelines(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/v1/pipelines")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []pipelineInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	byName := map[string]pipelineInfo{}
	for _, p := range body.Data {
		byName[p.Name] = p
	}
	require.Contains(t, byName, orchestrator.VariantDeep)
	deep := byName[orchestrator.VariantDeep]
	assert.Len(t, deep.Stages, 3)
	assert.Len(t, deep.Visible, 1)
	assert.Equal(t, orchestrator.VariantPersona, byName[orchestrator.VariantResearch].Handoff)
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := post(t, srv.URL+"/v1/classify", `{"query":"what does this mean?"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var c intent.Classification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	assert.Equal(t, intent.Understanding, c.Archetype)
}

func TestClassify_Invalid(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := post(t, srv.URL+"/v1/classify", `{"query":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/classify", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request_error", errorType(t, resp))
}

func TestRetrieve(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, Deps{Service: svc})

	resp := post(t, srv.URL+"/v1/retrieve", `{"query":"open door","top_k":3}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res retrieval.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, retrieval.ModeSemantic, res.Mode)
	require.Len(t, res.Passages, 1)
	assert.Equal(t, 3, svc.lastTopK())

	resp = post(t, srv.URL+"/v1/retrieve", `{"query":"open door","top_k":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_StreamsNDJSON(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, Deps{Service: svc})

	resp := post(t, srv.URL+"/v1/ask", `{"query":"how do I begin?","variant":"direct","memory":"likes brevity","history":[{"role":"user","text":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, orchestrator.EventContentDelta, events[0].Type)
	assert.True(t, events[1].Terminal())

	qs := svc.recorded()
	require.Len(t, qs, 1)
	q := qs[0]
	assert.Equal(t, "how do I begin?", q.Text)
	assert.Equal(t, "direct", q.Variant)
	assert.Equal(t, "likes brevity", q.Memory)
	require.Len(t, q.History, 1)
	assert.Equal(t, "hi", q.History[0].Text)
}

func TestAsk_ValidationBeforeStream(t *testing.T) {
	svc := &fakeService{respond: func(context.Context, pipeline.Query, orchestrator.Sink) (pipeline.Answer, error) {
		return pipeline.Answer{}, pipeline.ErrUnknownVariant
	}}
	srv := newTestServer(t, Deps{Service: svc})

	resp := post(t, srv.URL+"/v1/ask", `{"query":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/ask", `{"query":"why?","variant":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request_error", errorType(t, resp))
}

func TestAsk_StageErrorStaysInStream(t *testing.T) {
	svc := &fakeService{respond: func(ctx context.Context, _ pipeline.Query, sink orchestrator.Sink) (pipeline.Answer, error) {
		err := &orchestrator.StageError{Ordinal: 1, Name: "explore", Err: errors.New("boom")}
		sink.Send(ctx, orchestrator.Event{Type: orchestrator.EventPipelineError, Stage: 1, StageName: "explore", Error: err.Error()})
		return pipeline.Answer{RunID: "r1"}, err
	}}
	srv := newTestServer(t, Deps{Service: svc})

	resp := post(t, srv.URL+"/v1/ask", `{"query":"why?"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readEvents(t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, orchestrator.EventPipelineError, events[0].Type)
	assert.Contains(t, events[0].Error, "boom")
}

func TestAsk_RateLimited(t *testing.T) {
	srv := newTestServer(t, Deps{AskLimiter: rate.NewLimiter(rate.Limit(0.001), 1)})

	resp := post(t, srv.URL+"/v1/ask", `{"query":"why?"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/ask", `{"query":"why?"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limit_error", errorType(t, resp))

	// classify is not throttled
	resp = post(t, srv.URL+"/v1/classify", `{"query":"why?"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 4))
	l := NewLimiter(2, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}
