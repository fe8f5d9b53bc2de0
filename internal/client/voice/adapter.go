// Package voice drives one push-to-talk turn at a time on the client:
// capture an utterance, send it to the backend, speak the reply.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/model/session"
	"github.com/voicedesk/backend/internal/service/conversation"
)

// State is the adapter's position in the talk cycle.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// DefaultLanguage is the recognition language used unless WithLanguage is given.
const DefaultLanguage = "en-US"

var (
	// ErrBusy is returned when the talk control is disabled.
	ErrBusy = errors.New("voice adapter busy")
	// ErrCapabilityUnavailable means the platform lacks recognition or synthesis.
	ErrCapabilityUnavailable = errors.New("speech capability unavailable")
	// ErrCapabilityFailed means a capture or synthesis attempt failed.
	ErrCapabilityFailed = errors.New("speech capability failed")
)

// Recognizer captures a single final utterance. Cancelling ctx stops
// listening and returns whatever was captured so far.
type Recognizer interface {
	Recognize(ctx context.Context, lang string) (string, error)
}

// Synthesizer speaks text aloud and returns when playback ends.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Reply is what the backend answered for one utterance.
type Reply struct {
	Text  string
	State session.State
}

// Transport delivers an utterance to the backend.
type Transport interface {
	Send(ctx context.Context, utterance string) (Reply, error)
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLanguage sets the recognition language.
func WithLanguage(lang string) Option {
	return func(a *Adapter) {
		if lang != "" {
			a.lang = lang
		}
	}
}

// WithStateListener registers fn to observe every state change.
func WithStateListener(fn func(State)) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.listeners = append(a.listeners, fn)
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter is the client side speech state machine.
type Adapter struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	transport   Transport
	lang        string
	listeners   []func(State)
	logger      zerolog.Logger

	mu            sync.Mutex
	state         State
	lastErr       error
	fallback      string
	stopListening context.CancelFunc
	done          chan struct{}
}

// New returns an idle adapter. Nil capabilities are reported when first used.
func New(recognizer Recognizer, synthesizer Synthesizer, transport Transport, opts ...Option) *Adapter {
	a := &Adapter{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		transport:   transport,
		lang:        DefaultLanguage,
		logger:      log.Logger,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the error that moved the adapter into StateError.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Fallback returns the last text the adapter meant to speak.
func (a *Adapter) Fallback() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fallback
}

// Toggle is the push-to-talk control. In idle it starts a turn in the
// background; while listening it stops capture early.
func (a *Adapter) Toggle(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateIdle:
		if a.recognizer == nil {
			a.mu.Unlock()
			return a.fail(fmt.Errorf("%w: speech recognition", ErrCapabilityUnavailable))
		}
		listenCtx, stop := context.WithCancel(ctx)
		a.stopListening = stop
		a.done = make(chan struct{})
		a.state = StateListening
		done := a.done
		a.mu.Unlock()

		a.notify(StateListening)
		go a.runTurn(ctx, listenCtx, done)
		return nil

	case StateListening:
		stop := a.stopListening
		a.mu.Unlock()
		if stop != nil {
			stop()
		}
		return nil

	default:
		a.mu.Unlock()
		return ErrBusy
	}
}

// Retry leaves StateError. It is a no-op in any other state.
func (a *Adapter) Retry() {
	a.mu.Lock()
	if a.state != StateError {
		a.mu.Unlock()
		return
	}
	a.state = StateIdle
	a.lastErr = nil
	a.mu.Unlock()
	a.notify(StateIdle)
}

// Greet speaks the opening line. It blocks until playback ends.
func (a *Adapter) Greet(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrBusy
	}
	a.fallback = conversation.Greeting
	if a.synthesizer == nil {
		a.mu.Unlock()
		return a.fail(fmt.Errorf("%w: speech synthesis", ErrCapabilityUnavailable))
	}
	a.state = StateSpeaking
	a.mu.Unlock()

	a.notify(StateSpeaking)
	return a.play(ctx, conversation.Greeting)
}

// Wait blocks until the running turn, if any, has finished.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) runTurn(ctx, listenCtx context.Context, done chan struct{}) {
	defer close(done)

	utterance, err := a.recognizer.Recognize(listenCtx, a.lang)

	a.mu.Lock()
	stop := a.stopListening
	a.stopListening = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}

	if err != nil {
		a.fail(fmt.Errorf("%w: recognition: %w", ErrCapabilityFailed, err))
		return
	}

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		a.logger.Debug().Msg("nothing captured")
		a.set(StateIdle)
		return
	}

	a.set(StateProcessing)
	reply, err := a.transport.Send(ctx, utterance)
	if err != nil {
		a.fail(fmt.Errorf("send utterance: %w", err))
		return
	}

	_ = a.speak(ctx, reply.Text)
}

func (a *Adapter) speak(ctx context.Context, text string) error {
	a.mu.Lock()
	a.fallback = text
	a.mu.Unlock()

	if a.synthesizer == nil {
		return a.fail(fmt.Errorf("%w: speech synthesis", ErrCapabilityUnavailable))
	}

	a.set(StateSpeaking)
	return a.play(ctx, text)
}

// play runs synthesis to completion; cancelling ctx does not interrupt it.
func (a *Adapter) play(ctx context.Context, text string) error {
	if err := a.synthesizer.Speak(context.WithoutCancel(ctx), text); err != nil {
		return a.fail(fmt.Errorf("%w: synthesis: %w", ErrCapabilityFailed, err))
	}
	a.set(StateIdle)
	return nil
}

func (a *Adapter) set(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
	a.notify(state)
}

func (a *Adapter) fail(err error) error {
	a.mu.Lock()
	a.state = StateError
	a.lastErr = err
	a.mu.Unlock()

	a.logger.Warn().Err(err).Msg("voice turn failed")
	a.notify(StateError)
	return err
}

func (a *Adapter) notify(state State) {
	for _, fn := range a.listeners {
		fn(state)
	}
}
