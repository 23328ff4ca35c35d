package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"report-intake-service/audio"
	"report-intake-service/demux"
	"report-intake-service/llm"
	"report-intake-service/metrics"
	"report-intake-service/models"
	"report-intake-service/report"

	"github.com/apex/log"
)

// State is a step of one submission's lifecycle
type State string

const (
	StateCollecting        State = "Collecting"
	StateAwaitingFileTasks State = "AwaitingFileTasks"
	StateResolvingSource   State = "ResolvingSource"
	StateSummarizing       State = "Summarizing"
	StateAssembling        State = "Assembling"
	StateForwarding        State = "Forwarding"
	StateCompleted         State = "Completed"
	StateFailed            State = "Failed"
)

const publishTimeout = 30 * time.Second

// Source names which input became the report text
const (
	SourceDescription = "description"
	SourceTranscript  = "transcript"
)

// Forwarder delivers a finished report downstream
type Forwarder interface {
	Forward(ctx context.Context, report models.StructuredReport) (*models.ForwardResult, error)
}

// Publisher fans a forwarded report out to other consumers
type Publisher interface {
	PublishReport(ctx context.Context, requestID string, rep models.StructuredReport) error
}

// Request is one inbound submission
type Request struct {
	ID          string
	Body        io.Reader
	ContentType string
}

// Result is a completed submission
type Result struct {
	Report  models.StructuredReport
	Source  string
	Forward *models.ForwardResult
	// Files lists every file part seen, in wire order.
	Files []models.FileInfo
}

// Pipeline orchestrates demux, transcription, summarization, assembly and
// forwarding. One Pipeline serves all requests; per-request state lives in run.
type Pipeline struct {
	transcriber    llm.Transcriber
	summarizer     llm.Summarizer
	forwarder      Forwarder
	publisher      Publisher
	maxUploadBytes int64
	observe        func(requestID string, s State)
}

type Option func(*Pipeline)

// WithMaxUploadBytes bounds the multipart body size
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) { p.maxUploadBytes = n }
}

// WithPublisher enables best-effort fan-out of forwarded reports
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithObserver registers a callback invoked on every state change
func WithObserver(fn func(requestID string, s State)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

func New(transcriber llm.Transcriber, summarizer llm.Summarizer, forwarder Forwarder, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber: transcriber,
		summarizer:  summarizer,
		forwarder:   forwarder,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type taskResult struct {
	transcript string
	err        error
}

// run is the state of a single submission
type run struct {
	p      *Pipeline
	ctx    context.Context
	logger log.Interface
	id     string
	state  State

	sub     models.Submission
	barrier *barrier

	mu      sync.Mutex
	results map[string]taskResult
}

// Run processes one submission end to end and returns exactly one outcome:
// a Result, or an *Error carrying the failure kind.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		p:       p,
		ctx:     ctx,
		id:      req.ID,
		logger:  log.WithField("request_id", req.ID),
		sub:     models.Submission{Fields: make(map[string]string)},
		barrier: newBarrier(),
		results: make(map[string]taskResult),
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	res, err := r.execute(req)
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			perr = newError(KindDemuxFailed, err)
		}
		perr.State = r.state
		r.transition(StateFailed)
		metrics.SubmissionsTotal.WithLabelValues(string(perr.Kind)).Inc()
		r.logger.WithFields(log.Fields{
			"kind":  perr.Kind,
			"state": perr.State,
		}).WithError(perr.Err).Warn("submit.failed")
		return nil, perr
	}

	r.transition(StateCompleted)
	metrics.SubmissionsTotal.WithLabelValues("completed").Inc()
	r.logger.WithFields(log.Fields{
		"source":         res.Source,
		"citizen_id":     res.Report.CitizenID,
		"photos":         len(res.Report.PhotoURLs),
		"files":          len(res.Files),
		"declined_files": declined(res.Files),
	}).Info("submit.completed")

	if p.publisher != nil {
		go r.publish(res.Report)
	}
	return res, nil
}

func (r *run) execute(req Request) (*Result, error) {
	r.transition(StateCollecting)
	started := time.Now()
	rd, err := demux.NewReader(req.Body, req.ContentType, r.p.maxUploadBytes)
	if err != nil {
		r.barrier.seal()
		return nil, newError(KindDemuxFailed, err)
	}
	demuxErr := rd.Run(r)
	r.barrier.seal()
	observeStage("demux", started)

	r.transition(StateAwaitingFileTasks)
	r.logger.WithField("pending", r.barrier.pendingCount()).Debug("submit.awaiting_file_tasks")
	r.barrier.wait()

	if demuxErr != nil {
		if errors.Is(demuxErr, demux.ErrFileStream) {
			return nil, newError(KindFileStreamFailed, demuxErr)
		}
		return nil, newError(KindDemuxFailed, demuxErr)
	}

	transcript, err := r.transcript()
	if err != nil {
		return nil, err
	}

	r.transition(StateResolvingSource)
	source, from := resolveSource(r.sub.Get(models.FieldDescription), transcript)
	if from == "" {
		return nil, newError(KindNoInputProvided, nil)
	}

	r.transition(StateSummarizing)
	started = time.Now()
	summary, err := guard(func() (string, error) {
		return r.p.summarizer.Summarize(r.ctx, source)
	})
	observeStage("summarize", started)
	if err != nil {
		return nil, newError(KindSummarizationFailed, err)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, newError(KindSummarizationFailed, fmt.Errorf("%s returned an empty summary", r.p.summarizer.SourceName()))
	}

	r.transition(StateAssembling)
	structured := report.Assemble(&r.sub, source, summary)

	r.transition(StateForwarding)
	started = time.Now()
	fwd, err := guard(func() (*models.ForwardResult, error) {
		return r.p.forwarder.Forward(r.ctx, structured)
	})
	observeStage("forward", started)
	if err != nil {
		return nil, newError(KindForwardingFailed, err)
	}

	return &Result{Report: structured, Source: from, Forward: fwd, Files: r.sub.Files}, nil
}

// resolveSource prefers a non-blank description over the transcript. from is
// "" when neither has content.
func resolveSource(description, transcript string) (text, from string) {
	if strings.TrimSpace(description) != "" {
		return description, SourceDescription
	}
	if strings.TrimSpace(transcript) != "" {
		return transcript, SourceTranscript
	}
	return "", ""
}

// OnField implements demux.Sink. Later values of a repeated field win.
func (r *run) OnField(name, value string) {
	r.sub.Fields[name] = value
}

// OnFile implements demux.Sink. Only the first "audio" part is consumed.
func (r *run) OnFile(part demux.FilePart) bool {
	info := models.FileInfo{Field: part.Field, Filename: part.Filename}
	defer func() {
		r.sub.Files = append(r.sub.Files, info)
		if !info.Consumed {
			metrics.DeclinedFilesTotal.Inc()
		}
	}()

	if part.Field != models.FieldAudio {
		r.logger.WithFields(log.Fields{"field": part.Field, "filename": part.Filename}).Debug("submit.file_ignored")
		return false
	}
	if !r.barrier.start(part.Field) {
		r.logger.WithField("filename", part.Filename).Warn("submit.duplicate_audio_ignored")
		return false
	}
	info.Consumed = true
	go r.transcribe(part)
	return true
}

func (r *run) transcribe(part demux.FilePart) {
	var out taskResult
	defer func() {
		if rec := recover(); rec != nil {
			out = taskResult{err: newError(KindTranscriptionFailed, fmt.Errorf("panic: %v", rec))}
		}
		part.Body.Close()
		r.mu.Lock()
		r.results[part.Field] = out
		r.mu.Unlock()
		r.barrier.settle(part.Field)
	}()

	started := time.Now()
	buf, err := audio.Read(part.Body)
	observeStage("buffer", started)
	if err != nil {
		out.err = newError(KindFileStreamFailed, err)
		return
	}
	metrics.AudioBytesTotal.Add(float64(buf.Len()))
	if buf.Empty() {
		r.logger.WithField("filename", part.Filename).Warn("submit.empty_audio")
		return
	}

	started = time.Now()
	text, err := r.p.transcriber.Transcribe(r.ctx, buf)
	observeStage("transcribe", started)
	if err != nil {
		out.err = newError(KindTranscriptionFailed, err)
		return
	}
	r.logger.WithFields(log.Fields{
		"bytes":  buf.Len(),
		"chunks": buf.Chunks(),
		"chars":  len(text),
	}).Debug("submit.transcribed")
	out.transcript = text
}

// transcript returns the audio transcript once the barrier is open.
func (r *run) transcript() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[models.FieldAudio]
	if !ok {
		return "", nil
	}
	return res.transcript, res.err
}

func (r *run) transition(s State) {
	r.state = s
	r.logger.WithField("state", s).Debug("submit.state")
	if r.p.observe != nil {
		r.p.observe(r.id, s)
	}
}

func (r *run) publish(rep models.StructuredReport) {
	// The caller may already have its response; publishing outlives the request.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.p.publisher.PublishReport(ctx, r.id, rep); err != nil {
		metrics.PublishErrorTotal.Inc()
		r.logger.WithError(err).Error("submit.publish_failed")
		return
	}
	r.logger.Debug("submit.published")
}

func declined(files []models.FileInfo) int {
	n := 0
	for _, f := range files {
		if !f.Consumed {
			n++
		}
	}
	return n
}

// guard turns a panicking adapter call into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func observeStage(stage string, started time.Time) {
	metrics.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
