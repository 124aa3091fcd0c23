package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lukasbauer/voicegate/internal/synthesis"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20

// Outcome labels for metrics and logs.
const (
	outcomeOK                = "ok"
	outcomeValidation        = "validation_error"
	outcomeEngineRejected    = "engine_rejected"
	outcomeEngineUnavailable = "engine_unavailable"
	outcomeInternal          = "internal_error"
)

// errorReply is the caller-visible form of a pipeline failure.
type errorReply struct {
	status      int
	contentType string
	body        []byte
	detail      string
	outcome     string
}

// replyFor translates a pipeline error into exactly one caller response.
func replyFor(err error) errorReply {
	var (
		ve *synthesis.ValidationError
		re *synthesis.EngineRejectedError
		ue *synthesis.EngineUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		return detailReply(http.StatusUnprocessableEntity, ve.Error(), outcomeValidation)
	case errors.As(err, &re):
		ct := re.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		return errorReply{
			status:      re.StatusCode,
			contentType: ct,
			body:        re.Body,
			detail:      string(re.Body),
			outcome:     outcomeEngineRejected,
		}
	case errors.As(err, &ue):
		return detailReply(http.StatusServiceUnavailable, engineUnavailableMsg, outcomeEngineUnavailable)
	default:
		return detailReply(http.StatusInternalServerError, "Internal server error", outcomeInternal)
	}
}

func detailReply(status int, detail, outcome string) errorReply {
	body, _ := json.Marshal(map[string]string{"detail": detail})
	return errorReply{
		status:      status,
		contentType: "application/json",
		body:        append(body, '\n'),
		detail:      detail,
		outcome:     outcome,
	}
}

func (r *Router) handleSynthesisPost(w http.ResponseWriter, req *http.Request) {
	sreq, err := synthesis.DecodeJSON(http.MaxBytesReader(w, req.Body, maxRequestBodyBytes))
	if err != nil {
		r.writeSynthesisError(w, req, err, time.Now())
		return
	}
	r.synthesize(w, req, sreq)
}

func (r *Router) handleSynthesisGet(w http.ResponseWriter, req *http.Request) {
	sreq, err := synthesis.FromQuery(req.URL.Query())
	if err != nil {
		r.writeSynthesisError(w, req, err, time.Now())
		return
	}
	r.synthesize(w, req, sreq)
}

func (r *Router) synthesize(w http.ResponseWriter, req *http.Request, sreq synthesis.Request) {
	start := time.Now()
	res, err := r.synth.Synthesize(req.Context(), sreq)
	if err != nil {
		r.writeSynthesisError(w, req, err, start)
		return
	}

	r.metrics.RecordSynthesis(req.Context(), outcomeOK, time.Since(start))
	r.requestLogger(req).Info("audio synthesis completed",
		zap.Int("speaker", sreq.Speaker),
		zap.Int("bytes", len(res.Audio)),
		zap.Duration("elapsed", time.Since(start)))

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

// writeSynthesisError logs the failure once and writes its mapped response.
func (r *Router) writeSynthesisError(w http.ResponseWriter, req *http.Request, err error, start time.Time) {
	reply := r.reportFailure(req, err, start)

	w.Header().Set("Content-Type", reply.contentType)
	w.WriteHeader(reply.status)
	_, _ = w.Write(reply.body)
}

// reportFailure maps err, logs it once and records it. Internal errors also go to Sentry.
func (r *Router) reportFailure(req *http.Request, err error, start time.Time) errorReply {
	reply := replyFor(err)
	log := r.requestLogger(req)

	switch reply.outcome {
	case outcomeValidation:
		log.Info("synthesis request rejected", zap.Error(err))
	case outcomeEngineRejected, outcomeEngineUnavailable:
		log.Warn("synthesis failed at engine", zap.Error(err), zap.Int("status", reply.status))
	default:
		log.Error("unexpected error during synthesis", zap.Error(err))
		captureError(req, err, "synthesis")
	}
	r.metrics.RecordSynthesis(req.Context(), reply.outcome, time.Since(start))
	return reply
}
