package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/reasoning"
	"github.com/sleepstars/nimbridge/internal/sse"
	"github.com/sleepstars/nimbridge/internal/translate"
)

// Sink is where a streamed response is written
type Sink interface {
	// Begin commits the event stream headers and status
	Begin()
	Write(p []byte) error
	Flush()
}

// ErrClientGone reports a stream abandoned by the client
var ErrClientGone = errors.New("client disconnected")

// Stream performs the streaming relay. The upstream stream is opened before
// anything is written to sink, so a failure to open it is returned while the
// response can still carry an error status. Once Begin has been called errors
// only end the stream.
func (p *Proxy) Stream(ctx context.Context, req *Request, sink Sink) error {
	req.enter(PhaseAwaitingUpstream)

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	body, err := p.client.Stream(upstreamCtx, req.Call)
	if err != nil {
		p.metrics.ObserveUpstream(metrics.ModeStreaming, time.Since(start))
		return req.fail(err)
	}

	req.enter(PhaseStreamingRelay)
	sink.Begin()

	frames := make(chan sse.Frame)
	readErr := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(frames)

		reader := sse.NewReader(body)
		for {
			f, err := reader.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case frames <- f:
			case <-upstreamCtx.Done():
				return
			}
		}
	}()

	defer func() {
		cancel()
		body.Close()
		<-done
		p.metrics.ObserveUpstream(metrics.ModeStreaming, time.Since(start))
	}()

	if err := p.emit(sink, sse.Keepalive); err != nil {
		return req.fail(err)
	}

	rec := reasoning.NewRecombiner(p.opts.ShowReasoning)
	relayed := 0
	for {
		select {
		case <-ctx.Done():
			p.metrics.RecordDisconnect()
			return req.fail(fmt.Errorf("%w after %d frames: %v", ErrClientGone, relayed, ctx.Err()))

		case f, ok := <-frames:
			if !ok {
				select {
				case err := <-readErr:
					// The client may have gone away while the read was failing
					if ctx.Err() != nil {
						p.metrics.RecordDisconnect()
						return req.fail(fmt.Errorf("%w after %d frames: %v", ErrClientGone, relayed, ctx.Err()))
					}
					return req.fail(fmt.Errorf("read upstream stream: %w", err))
				default:
				}
				req.logger.Debug("Request %s stream finished after %d frames", req.ID, relayed)
				req.enter(PhaseCompleted)
				return nil
			}

			out, err := p.rewrite(req, f, rec)
			if err != nil {
				req.logger.WithError(err).Warn("Request %s: dropping frame", req.ID)
				continue
			}
			if err := p.emit(sink, out); err != nil {
				p.metrics.RecordDisconnect()
				return req.fail(fmt.Errorf("%w: %v", ErrClientGone, err))
			}
			p.metrics.RecordFrame(f.Kind.String())
			relayed++

			// Nothing meaningful follows the sentinel
			if f.Kind == sse.KindDone {
				req.enter(PhaseCompleted)
				return nil
			}
		}
	}
}

// rewrite turns one upstream frame into its outgoing wire form
func (p *Proxy) rewrite(req *Request, f sse.Frame, rec *reasoning.Recombiner) ([]byte, error) {
	switch f.Kind {
	case sse.KindData:
		translate.Chunk(f.Payload, rec)
	case sse.KindRaw:
		req.logger.WithError(f.Err).Debug("Request %s: forwarding undecodable frame", req.ID)
	}
	return sse.Encode(f)
}

func (p *Proxy) emit(sink Sink, data []byte) error {
	if err := sink.Write(data); err != nil {
		return err
	}
	sink.Flush()
	return nil
}
