package ai

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voicedesk/backend/internal/model/session"
)

// DefaultSystemPrompt instructs the model to run the ticket intake conversation.
const DefaultSystemPrompt = `You are a helpful support assistant for a technology company. Your role is to help users create support tickets through natural conversation.

Conversation flow:
1. Greet and ask what product they need help with
2. Ask about the specific issue
3. Ask about urgency (low, medium, or high)
4. Summarize and create a ticket with the ticket id given below
5. Confirm if they want to submit
6. Complete and tell them response time (2 hours for high, 24 hours for medium, 48 hours for low)

Keep responses:
- Natural and conversational
- Short and concise (1-2 sentences max)
- Empathetic and professional
- Guide the conversation but don't be robotic

Example conversation:
User: "Um, the mobile app"
You: "Got it, the mobile app. What issue are you experiencing?"

User: "It crashes when I try to upload photos"
You: "I understand, the app crashes during photo uploads. How urgent is this for you - low, medium, or high?"

User: "It's pretty urgent, high"
You: "I've created ticket #T-3847 for the mobile app crash during photo uploads with high priority. Should I submit this now?"

User: "Yes please"
You: "Perfect! Your ticket has been submitted. Our team will contact you within 2 hours for high priority issues."`

// promptFile is the YAML layout accepted by LoadSystemPrompt.
type promptFile struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// LoadSystemPrompt reads the system_prompt key of a YAML file.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}

	var file promptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("failed to parse prompt file: %w", err)
	}

	prompt := strings.TrimSpace(file.SystemPrompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s has no system_prompt", path)
	}
	return prompt, nil
}

// buildSystemPrompt appends the ticket fields gathered so far and the
// scripted reply for this turn to base.
func buildSystemPrompt(base string, draft *session.Session, suggested string) string {
	var builder strings.Builder
	builder.WriteString(base)
	builder.WriteString("\n\nCurrent ticket:")
	builder.WriteString("\n- Stage: ")
	builder.WriteString(string(draft.State))
	writeField(&builder, "Product", string(draft.Context.Product))
	writeField(&builder, "Issue", draft.Context.Issue)
	writeField(&builder, "Urgency", string(draft.Context.Urgency))
	writeField(&builder, "Ticket id", draft.Context.TicketID)
	if draft.Context.Urgency != "" && draft.State == session.StateComplete {
		writeField(&builder, "Response time", draft.Context.Urgency.ResponseWindow())
	}

	builder.WriteString("\n\nThe next reply should convey: ")
	builder.WriteString(suggested)
	builder.WriteString("\nUse the ticket id exactly as given. Never invent a different one.")
	return builder.String()
}

func writeField(builder *strings.Builder, name, value string) {
	if value == "" {
		value = "unknown"
	}
	builder.WriteString("\n- ")
	builder.WriteString(name)
	builder.WriteString(": ")
	builder.WriteString(value)
}
