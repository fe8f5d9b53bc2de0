package conversation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/voicedesk/backend/internal/model/session"
)

// Reply is the outcome of one processed utterance.
type Reply struct {
	Text      string
	State     session.State
	Submitted bool
}

// Responder turns an utterance into the next reply, mutating only the given session.
type Responder interface {
	Respond(ctx context.Context, sess *session.Session, utterance string) (Reply, error)
}

const (
	replyAskMobileProblem = "I understand you're having issues with the mobile app. What specific problem are you experiencing?"
	replyAskWebsiteIssue  = "I see you're having problems with the website. What specific issues are you experiencing?"
	replyAskProduct       = "I understand. What product or service are you calling about today?"
	replyAskUrgency       = "I understand the issue. How urgent is this for you - low, medium, or high priority?"
	replyNotSubmitted     = "No problem. Your ticket has been saved but not submitted. You can contact us again anytime."
	replyMoreDetails      = "I understand. Can you provide more details?"
)

// Greeting is the opening line spoken before the first utterance.
const Greeting = "Hi, I'm your support assistant. What product are you calling about today?"

// productRule maps keywords to a product; rules are checked in order.
type productRule struct {
	keywords []string
	product  session.Product
	reply    string
}

var productRules = []productRule{
	{keywords: []string{"mobile", "app"}, product: session.ProductMobileApp, reply: replyAskMobileProblem},
	{keywords: []string{"website", "web"}, product: session.ProductWebsite, reply: replyAskWebsiteIssue},
}

type urgencyRule struct {
	keywords []string
	urgency  session.Urgency
}

var urgencyRules = []urgencyRule{
	{keywords: []string{"high", "urgent"}, urgency: session.UrgencyHigh},
	{keywords: []string{"medium"}, urgency: session.UrgencyMedium},
}

var submitKeywords = []string{"yes", "submit"}

// TicketIDFunc produces a ticket identifier.
type TicketIDFunc func() string

// RandomTicketID returns "T-" followed by an integer in [0, 9999].
func RandomTicketID() string {
	return fmt.Sprintf("T-%d", rand.IntN(10000))
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTicketIDs replaces the ticket id generator.
func WithTicketIDs(fn TicketIDFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.ticketID = fn
		}
	}
}

// Engine is the keyword driven state machine.
type Engine struct {
	ticketID TicketIDFunc
}

// NewEngine creates an Engine with random ticket ids.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{ticketID: RandomTicketID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Respond implements Responder. It never returns an error.
func (e *Engine) Respond(_ context.Context, sess *session.Session, utterance string) (Reply, error) {
	return e.Advance(sess, utterance), nil
}

// Advance applies one utterance to sess and returns the reply.
func (e *Engine) Advance(sess *session.Session, utterance string) Reply {
	text := strings.ToLower(utterance)

	switch sess.State {
	case session.StateGreeting:
		for _, rule := range productRules {
			if containsAny(text, rule.keywords) {
				sess.Context.Product = rule.product
				sess.State = session.StateCollectingIssue
				return reply(sess, rule.reply)
			}
		}
		return reply(sess, replyAskProduct)

	case session.StateCollectingIssue:
		sess.Context.Issue = utterance
		sess.State = session.StateCollectingUrgency
		return reply(sess, replyAskUrgency)

	case session.StateCollectingUrgency:
		sess.Context.Urgency = session.UrgencyLow
		for _, rule := range urgencyRules {
			if containsAny(text, rule.keywords) {
				sess.Context.Urgency = rule.urgency
				break
			}
		}
		sess.Context.TicketID = e.ticketID()
		sess.State = session.StateConfirming
		return reply(sess, fmt.Sprintf(
			"I've created ticket #%s for %s with %s priority. Should I submit this now?",
			sess.Context.TicketID, sess.Context.Product, sess.Context.Urgency,
		))

	case session.StateConfirming:
		sess.State = session.StateComplete
		if containsAny(text, submitKeywords) {
			r := reply(sess, fmt.Sprintf(
				"Perfect! Your ticket #%s has been submitted. Our team will contact you within %s for %s priority issues.",
				sess.Context.TicketID, sess.Context.Urgency.ResponseWindow(), sess.Context.Urgency,
			))
			r.Submitted = true
			return r
		}
		return reply(sess, replyNotSubmitted)
	}

	return reply(sess, replyMoreDetails)
}

func reply(sess *session.Session, text string) Reply {
	return Reply{Text: text, State: sess.State}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
