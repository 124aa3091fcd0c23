package synthesis

import (
	"context"
	"errors"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lukasbauer/voicegate/internal/engine"
	"go.uber.org/zap"
)

// DefaultContentType is used when the engine does not declare an audio type.
const DefaultContentType = "audio/wav"

// Engine is the part of the engine client the orchestrator needs.
type Engine interface {
	AudioQuery(ctx context.Context, text string, speaker int) ([]byte, error)
	Synthesis(ctx context.Context, speaker int, query []byte) (*engine.Response, error)
}

// State is a step of the per-request pipeline.
type State int

const (
	StateStart State = iota
	StateValidating
	StateQueryRequested
	StateQueryReceived
	StateMutated
	StateSynthesisRequested
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:              "start",
	StateValidating:         "validating",
	StateQueryRequested:     "query_requested",
	StateQueryReceived:      "query_received",
	StateMutated:            "mutated",
	StateSynthesisRequested: "synthesis_requested",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Result is synthesized audio ready to hand to the caller.
type Result struct {
	Audio       []byte
	ContentType string
	Filename    string
}

// TransitionFunc observes every state change of a pipeline run.
type TransitionFunc func(from, to State)

// Orchestrator drives the query-then-synthesize protocol against the engine.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	engine       Engine
	logger       *zap.Logger
	onTransition TransitionFunc
}

type Option func(*Orchestrator)

// WithTransitionHook registers fn to be called on every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

func New(e Engine, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{engine: e, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Synthesize runs one request through the pipeline. The error, if any, is one of
// *ValidationError, *EngineRejectedError, *EngineUnavailableError or *InternalError.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	r := &run{o: o, req: req, state: StateStart}
	for !r.state.Terminal() {
		r.step(ctx)
	}
	if r.state == StateFailed {
		return nil, r.err
	}
	return r.result, nil
}

// run is the state of a single request. It is never shared between goroutines.
type run struct {
	o     *Orchestrator
	req   Request
	state State
	start time.Time

	rawQuery []byte
	query    *AudioQuery
	body     []byte
	result   *Result
	err      error
}

// step performs the work that leaves the current state.
func (r *run) step(ctx context.Context) {
	switch r.state {
	case StateStart:
		r.start = time.Now()
		r.transition(StateValidating)
	case StateValidating:
		r.validate()
	case StateQueryRequested:
		r.requestQuery(ctx)
	case StateQueryReceived:
		r.mutate()
	case StateMutated:
		r.encode()
	case StateSynthesisRequested:
		r.synthesize(ctx)
	default:
		r.fail(errors.New("step called in terminal state"))
	}
}

func (r *run) transition(to State) {
	if r.o.onTransition != nil {
		r.o.onTransition(r.state, to)
	}
	r.state = to
}

func (r *run) validate() {
	if err := r.req.Validate(); err != nil {
		r.fail(err)
		return
	}
	r.transition(StateQueryRequested)
}

func (r *run) requestQuery(ctx context.Context) {
	r.o.logger.Debug("creating audio query",
		zap.String("text", truncate(r.req.Text, 50)),
		zap.Int("speaker", r.req.Speaker))

	raw, err := r.o.engine.AudioQuery(ctx, r.req.Text, r.req.Speaker)
	if err != nil {
		r.fail(err)
		return
	}
	r.rawQuery = raw
	r.transition(StateQueryReceived)
}

func (r *run) mutate() {
	q, err := ParseAudioQuery(r.rawQuery)
	if err != nil {
		r.fail(err)
		return
	}
	if err := q.ApplyProsody(r.req); err != nil {
		r.fail(err)
		return
	}
	r.query = q
	r.transition(StateMutated)
}

func (r *run) encode() {
	body, err := r.query.MarshalJSON()
	if err != nil {
		r.fail(err)
		return
	}
	r.body = body
	r.transition(StateSynthesisRequested)
}

func (r *run) synthesize(ctx context.Context) {
	r.o.logger.Debug("synthesizing audio", zap.Int("speaker", r.req.Speaker))

	resp, err := r.o.engine.Synthesis(ctx, r.req.Speaker, r.body)
	if err != nil {
		r.fail(err)
		return
	}

	contentType := audioContentType(resp.ContentType)
	r.result = &Result{
		Audio:       resp.Body,
		ContentType: contentType,
		Filename:    "speech." + fileExtension(contentType),
	}
	r.o.logger.Debug("audio synthesis completed",
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("elapsed", time.Since(r.start)))
	r.transition(StateDone)
}

// fail classifies err against the state it happened in and ends the run.
func (r *run) fail(err error) {
	r.err = classify(r.state, err)
	r.transition(StateFailed)
}

func classify(state State, err error) error {
	var (
		ve *ValidationError
		se *engine.StatusError
		ue *engine.UnavailableError
	)
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.As(err, &se):
		return &EngineRejectedError{
			State:       state,
			StatusCode:  se.StatusCode,
			Body:        se.Body,
			ContentType: se.ContentType,
		}
	case errors.As(err, &ue):
		return &EngineUnavailableError{State: state, Err: ue.Err}
	default:
		return &InternalError{State: state, Err: err}
	}
}

func audioContentType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.HasPrefix(mt, "audio/") {
		return DefaultContentType
	}
	return mt
}

func fileExtension(contentType string) string {
	sub := strings.TrimPrefix(strings.TrimPrefix(contentType, "audio/"), "x-")
	switch sub {
	case "wav", "wave", "vnd.wave":
		return "wav"
	case "mpeg", "mp3":
		return "mp3"
	case "":
		return "wav"
	}
	return sub
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
