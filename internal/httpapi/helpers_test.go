package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lukasbauer/voicegate/internal/engine"
	"github.com/lukasbauer/voicegate/internal/synthesis"
	"go.uber.org/zap"
)

const fixedQuery = `{"accent_phrases":[{"moras":[],"accent":1}],"speedScale":1.0,"pitchScale":0.0,"intonationScale":1.0,"volumeScale":1.0,"prePhonemeLength":0.1,"outputSamplingRate":24000,"kana":"ハロー"}`

var fixedAudio = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

// engineCall is one request received by the mock engine.
type engineCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// mockEngine is a VOICEVOX stand-in that records every call it receives.
type mockEngine struct {
	mu    sync.Mutex
	calls []engineCall

	queryStatus int
	queryBody   string
	synthStatus int
	synthBody   []byte
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		queryStatus: http.StatusOK,
		queryBody:   fixedQuery,
		synthStatus: http.StatusOK,
		synthBody:   fixedAudio,
	}
}

func (m *mockEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.calls = append(m.calls, engineCall{r.Method, r.URL.Path, r.URL.RawQuery, string(body)})
	m.mu.Unlock()

	switch r.URL.Path {
	case "/version":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"0.14.7"`))
	case "/speakers":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"四国めたん","speaker_uuid":"7ffcb7ce","styles":[{"name":"ノーマル","id":2}]}]`))
	case "/audio_query":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.queryStatus)
		_, _ = w.Write([]byte(m.queryBody))
	case "/synthesis":
		if m.synthStatus == http.StatusOK {
			w.Header().Set("Content-Type", "audio/wav")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(m.synthStatus)
		_, _ = w.Write(m.synthBody)
	default:
		http.NotFound(w, r)
	}
}

func (m *mockEngine) Calls() []engineCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engineCall(nil), m.calls...)
}

// newTestRouter wires a real engine client and orchestrator against engineURL.
func newTestRouter(t *testing.T, engineURL string) http.Handler {
	t.Helper()
	client, err := engine.NewClient(engine.Config{BaseURL: engineURL})
	if err != nil {
		t.Fatalf("engine.NewClient: %v", err)
	}
	return NewRouter(
		RouterConfig{EngineURL: engineURL, CORSOrigins: []string{"*"}},
		zap.NewNop(),
		client,
		synthesis.New(client, zap.NewNop()),
		nil,
	)
}

// startMockEngine returns a running mock engine and a router pointed at it.
func startMockEngine(t *testing.T) (*mockEngine, http.Handler) {
	t.Helper()
	me := newMockEngine()
	srv := httptest.NewServer(me)
	t.Cleanup(srv.Close)
	return me, newTestRouter(t, srv.URL)
}

// closedEngineURL returns a URL nothing is listening on.
func closedEngineURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}
