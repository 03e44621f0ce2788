// Package worker provides a NATS worker that serves synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/book-expert/voicegen/internal/synthesis"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one job: synthesis, download and archive.
const DefaultJobTimeout = 2 * time.Minute

const audioKeyFormat = "%s.mp3"

// Generator runs one synthesis attempt.
type Generator interface {
	Generate(ctx context.Context, sel session.Selection) (core.Result, error)
}

// AudioFetcher downloads generated audio into memory.
type AudioFetcher interface {
	Fetch(ctx context.Context, audioURL string) ([]byte, error)
}

// SynthesisJob is the request payload on the jobs subject.
type SynthesisJob struct {
	Header events.EventHeader `json:"header"`
	Voice  string             `json:"voice"`
	Style  string             `json:"style"`
	Text   string             `json:"text"`
	Pitch  int                `json:"pitch"`
}

// SynthesisReply answers a SynthesisJob. Error is empty on success.
type SynthesisReply struct {
	Header   events.EventHeader `json:"header"`
	AudioKey string             `json:"audio_key,omitempty"`
	AudioURL string             `json:"audio_url,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	generator      Generator
	fetcher        AudioFetcher
	store          core.ObjectStore
	log            *logger.Logger
	subject        string
	jobTimeout     time.Duration
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	generator Generator,
	fetcher AudioFetcher,
	store core.ObjectStore,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		generator:      generator,
		fetcher:        fetcher,
		store:          store,
		log:            log,
		subject:        subject,
		jobTimeout:     DefaultJobTimeout,
	}
}

// Run subscribes and serves jobs until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for synthesis jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	var job SynthesisJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to parse synthesis job: %v", err)
		w.respond(msg, &SynthesisReply{Error: fmt.Sprintf("malformed job: %v", err)})

		return
	}

	if job.Header.EventID == "" {
		job.Header.EventID = uuid.NewString()
	}

	reply := w.process(ctx, &job)
	if reply.Error != "" {
		w.log.Error("Synthesis job %s failed: %s", job.Header.EventID, reply.Error)
	} else {
		w.log.Info("Synthesis job %s archived as %s", job.Header.EventID, reply.AudioKey)
	}

	w.respond(msg, reply)
}

// process runs the pipeline for one job and archives the audio.
func (w *NatsWorker) process(ctx context.Context, job *SynthesisJob) *SynthesisReply {
	reply := &SynthesisReply{Header: job.Header}

	result, err := w.generator.Generate(ctx, session.Selection{
		Voice: job.Voice,
		Style: job.Style,
		Text:  job.Text,
		Pitch: synthesis.ClampPitch(job.Pitch),
	})
	if err != nil {
		if reason, ok := core.ReasonOf(err); ok {
			reply.Reason = string(reason)
		}

		reply.Error = err.Error()

		return reply
	}

	if !result.OK() {
		reply.Error = result.ErrorDetail

		return reply
	}

	reply.AudioURL = result.AudioURL

	audioData, err := w.fetcher.Fetch(ctx, result.AudioURL)
	if err != nil {
		reply.Error = fmt.Sprintf("failed to download audio: %v", err)

		return reply
	}

	audioKey := fmt.Sprintf(audioKeyFormat, uuid.NewString())

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		reply.Error = fmt.Sprintf("failed to archive audio: %v", err)

		return reply
	}

	reply.AudioKey = audioKey

	return reply
}

func (w *NatsWorker) respond(msg *nats.Msg, reply *SynthesisReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for job %s: %v", reply.Header.EventID, err)
	}
}
