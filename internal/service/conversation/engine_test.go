package conversation_test

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/backend/internal/model/session"
	"github.com/voicedesk/backend/internal/service/conversation"
)

var ticketPattern = regexp.MustCompile(`^T-(\d+)$`)

func newSession(state session.State) *session.Session {
	sess := session.New("s-1", time.Now())
	sess.State = state
	return sess
}

func fixedTicket(id string) conversation.Option {
	return conversation.WithTicketIDs(func() string { return id })
}

func TestGreetingRecognizesMobileApp(t *testing.T) {
	engine := conversation.NewEngine()

	for _, utterance := range []string{"my mobile app keeps crashing", "The APP is broken", "Mobile"} {
		sess := newSession(session.StateGreeting)
		reply := engine.Advance(sess, utterance)

		assert.Equal(t, session.StateCollectingIssue, sess.State, utterance)
		assert.Equal(t, session.ProductMobileApp, sess.Context.Product, utterance)
		assert.Equal(t, session.StateCollectingIssue, reply.State)
		assert.Contains(t, reply.Text, "What specific problem")
	}
}

func TestGreetingRecognizesWebsite(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateGreeting)

	reply := engine.Advance(sess, "the Web portal won't load")

	assert.Equal(t, session.StateCollectingIssue, sess.State)
	assert.Equal(t, session.ProductWebsite, sess.Context.Product)
	assert.Contains(t, reply.Text, "What specific issues")
}

func TestGreetingMobileRuleWinsOverWebsite(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateGreeting)

	engine.Advance(sess, "website and mobile app")

	assert.Equal(t, session.ProductMobileApp, sess.Context.Product)
}

func TestGreetingWithoutProductAsksAgain(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateGreeting)

	reply := engine.Advance(sess, "hello there")

	assert.Equal(t, session.StateGreeting, sess.State)
	assert.Empty(t, sess.Context.Product)
	assert.Contains(t, reply.Text, "What product or service")
}

func TestCollectingIssueStoresVerbatimText(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateCollectingIssue)

	reply := engine.Advance(sess, "It Crashes On Upload")

	assert.Equal(t, "It Crashes On Upload", sess.Context.Issue)
	assert.Equal(t, session.StateCollectingUrgency, sess.State)
	assert.Contains(t, reply.Text, "How urgent")
}

func TestCollectingUrgencyBranches(t *testing.T) {
	cases := []struct {
		utterance string
		want      session.Urgency
	}{
		{utterance: "very urgent", want: session.UrgencyHigh},
		{utterance: "HIGH please", want: session.UrgencyHigh},
		{utterance: "medium I guess", want: session.UrgencyMedium},
		{utterance: "not a big deal", want: session.UrgencyLow},
		{utterance: "", want: session.UrgencyLow},
	}

	for _, tc := range cases {
		t.Run(tc.utterance, func(t *testing.T) {
			engine := conversation.NewEngine(fixedTicket("T-42"))
			sess := newSession(session.StateCollectingUrgency)
			sess.Context.Product = session.ProductMobileApp

			reply := engine.Advance(sess, tc.utterance)

			assert.Equal(t, tc.want, sess.Context.Urgency)
			assert.Equal(t, session.StateConfirming, sess.State)
			assert.Equal(t, "T-42", sess.Context.TicketID)
			assert.Contains(t, reply.Text, "#T-42")
			assert.Contains(t, reply.Text, "mobile app")
			assert.Contains(t, reply.Text, string(tc.want)+" priority")
		})
	}
}

func TestRandomTicketIDRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := conversation.RandomTicketID()
		m := ticketPattern.FindStringSubmatch(id)
		require.NotNil(t, m, id)
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, 9999)
	}
}

func TestTicketGeneratedOncePerTraversal(t *testing.T) {
	calls := 0
	engine := conversation.NewEngine(conversation.WithTicketIDs(func() string {
		calls++
		return "T-" + strconv.Itoa(calls)
	}))
	sess := newSession(session.StateGreeting)

	for _, utterance := range []string{"mobile app", "it crashes", "urgent", "yes submit it", "thanks"} {
		engine.Advance(sess, utterance)
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, "T-1", sess.Context.TicketID)
}

func TestConfirmingSubmits(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateConfirming)
	sess.Context = session.Context{Product: session.ProductWebsite, Urgency: session.UrgencyHigh, TicketID: "T-7"}

	reply := engine.Advance(sess, "Yes submit it")

	assert.Equal(t, session.StateComplete, sess.State)
	assert.True(t, reply.Submitted)
	assert.Contains(t, reply.Text, "#T-7 has been submitted")
	assert.Contains(t, reply.Text, "within 2 hours")
}

func TestConfirmingResponseWindowFollowsUrgency(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateConfirming)
	sess.Context = session.Context{Urgency: session.UrgencyLow, TicketID: "T-8"}

	reply := engine.Advance(sess, "submit")

	assert.Contains(t, reply.Text, "within 48 hours")
}

func TestConfirmingDeclines(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateConfirming)
	sess.Context.TicketID = "T-9"

	reply := engine.Advance(sess, "no thanks")

	assert.Equal(t, session.StateComplete, sess.State)
	assert.False(t, reply.Submitted)
	assert.Contains(t, reply.Text, "saved but not submitted")
	assert.Equal(t, "T-9", sess.Context.TicketID)
}

func TestCompleteAsksForMoreDetails(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateComplete)
	before := sess.Context

	reply := engine.Advance(sess, "yes")

	assert.Equal(t, session.StateComplete, sess.State)
	assert.Equal(t, before, sess.Context)
	assert.Equal(t, "I understand. Can you provide more details?", reply.Text)
}

func TestFullConversation(t *testing.T) {
	engine := conversation.NewEngine(fixedTicket("T-1234"))
	sess := newSession(session.StateGreeting)

	steps := []struct {
		utterance string
		state     session.State
	}{
		{"my mobile app keeps crashing", session.StateCollectingIssue},
		{"it crashes on upload", session.StateCollectingUrgency},
		{"very urgent", session.StateConfirming},
		{"yes submit it", session.StateComplete},
	}
	for _, step := range steps {
		reply, err := engine.Respond(context.Background(), sess, step.utterance)
		require.NoError(t, err)
		require.Equal(t, step.state, reply.State, step.utterance)
	}

	assert.Equal(t, session.Context{
		Product:  session.ProductMobileApp,
		Issue:    "it crashes on upload",
		Urgency:  session.UrgencyHigh,
		TicketID: "T-1234",
	}, sess.Context)
}

func TestTicketIDPresentOnlyOnceConfirming(t *testing.T) {
	engine := conversation.NewEngine()
	sess := newSession(session.StateGreeting)

	for _, utterance := range []string{"hi", "website", "login fails", "medium", "no"} {
		engine.Advance(sess, utterance)
		assert.Equal(t, sess.State.HasTicket(), sess.Context.TicketID != "", sess.State)
	}
}
