package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/pkg/contextpack"
	"github.com/reghealth/navigator/pkg/index"
	"github.com/reghealth/navigator/pkg/retriever"
	"github.com/reghealth/navigator/pkg/service"
	"github.com/reghealth/navigator/pkg/store"
	"github.com/reghealth/navigator/server"
)

type stubEmbedder struct{}

func embed(text string) []float32 {
	t := strings.ToLower(text)
	v := []float32{0.1, 0.1}
	if strings.Contains(t, "hospice") {
		v[0] = 1
	}
	if strings.Contains(t, "snf") {
		v[1] = 1
	}
	return v
}

func (stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

func (stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t)
	}
	return out, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	return "canned answer", nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	year := 2023
	chunks := []models.Chunk{
		{
			Text:          "Hospice payment rates increased.",
			SectionHeader: "II. Rates",
			Metadata:      models.RuleMetadata{SourceFile: "2023_hospice_final.xml", Program: models.ProgramHospice, RuleType: models.RuleFinal, Year: &year},
		},
		{
			Text:          "SNF market basket update.",
			SectionHeader: "III. Update",
			Metadata:      models.RuleMetadata{SourceFile: "2023_snf_final.xml", Program: models.ProgramSNF, RuleType: models.RuleFinal, Year: &year},
		},
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = embed(c.Text)
	}
	idx, err := index.Build(vectors)
	require.NoError(t, err)

	chunkStore := store.NewChunkStore(chunks)
	r := retriever.NewWithConfig(retriever.RetrieverConfig{}, stubEmbedder{}, idx, chunkStore)
	assembler := contextpack.NewWithConfig(contextpack.AssemblerConfig{MaxTokens: 1000}, wordCounter{})
	svc := service.NewWithConfig(service.ServiceConfig{}, r, assembler, fakeGenerator{}, chunkStore)

	ts := httptest.NewServer(server.New(server.Config{}, svc).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAskEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ask", server.AskRequest{Query: "What were the hospice rates?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var answer models.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "canned answer", answer.Answer)
	assert.NotEmpty(t, answer.SourcesUsed)
	assert.Greater(t, answer.Confidence, 0.0)
}

func TestAskEndpointWithExplicitFilters(t *testing.T) {
	ts := newTestServer(t)

	year := 2023
	resp := postJSON(t, ts.URL+"/ask", server.AskRequest{
		Query:   "payment rates",
		Filters: &server.FilterSpec{Program: "snf", Year: &year},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer models.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "filtered", answer.RetrievalMethod)
	require.NotEmpty(t, answer.SourcesUsed)
	for _, src := range answer.SourcesUsed {
		assert.Equal(t, models.ProgramSNF, src.Metadata.Program)
	}

	// The normalized predicate comes back in the payload.
	assert.Equal(t, "SNF", answer.FiltersApplied.Program)
	require.NotNil(t, answer.FiltersApplied.Year)
	assert.Equal(t, 2023, *answer.FiltersApplied.Year)
}

func TestAskEndpointRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ask", server.AskRequest{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskEndpointRejectsGet(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ask")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/search", server.AskRequest{Query: "snf update", TopK: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result retriever.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, models.ProgramSNF, result.Results[0].Chunk.Metadata.Program)
}

func TestChunkEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/chunks/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chunk models.Chunk
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chunk))
	assert.Equal(t, "Hospice payment rates increased.", chunk.Text)

	resp, err = http.Get(ts.URL + "/chunks/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/chunks/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketAsk(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", Content: "hospice rates"}))

	var status server.Message
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)

	var answer server.Message
	require.NoError(t, conn.ReadJSON(&answer))
	assert.Equal(t, "answer", answer.Type)
	require.NotNil(t, answer.Data)

	payload, err := json.Marshal(answer.Data)
	require.NoError(t, err)
	var got models.Answer
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "canned answer", got.Answer)
}

func TestWebSocketRejectsMalformed(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}
