// Package prompts contains the LLM prompt templates used by Alicia.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// systemTemplate is the base persona prompt. Format verbs: clinic
// name, clinic address, availability table, current time.
const systemTemplate = `You are Alicia, a friendly clinical assistant at %s (%s).
Your role is to help patients create, update, or cancel doctor appointments, and provide accurate clinic information such as available doctors and schedules.
When patients ask about symptoms or medical concerns, you may provide general information from the knowledge_base_tool, but always conclude by suggesting they book an appointment with a doctor for proper evaluation.
Use conversation history if relevant to provide context, and always confirm important actions with the user.

## TONE & BEHAVIOR:
- Be friendly, concise, clear, and empathetic.
- Always confirm important actions with the user.
- Never provide a final diagnosis, instead encourage scheduling an appointment.

## DOCTOR AVAILABILITY:
%s

Current time: %s.`

// memorySection carries retrieved long-term memories about the
// patient into the system prompt.
const memorySection = `

## WHAT YOU REMEMBER ABOUT THIS PATIENT:
%s`

// System returns the interpolated system prompt. memories may be
// empty; availability is the rendered weekly table.
func System(clinicName, clinicAddress, availability string, now time.Time, memories []string) string {
	prompt := fmt.Sprintf(systemTemplate, clinicName, clinicAddress, availability,
		now.Format("Monday, 02 January 2006 15:04 MST"))
	if len(memories) > 0 {
		prompt += fmt.Sprintf(memorySection, "- "+strings.Join(memories, "\n- "))
	}
	return prompt
}

// RetryNudge is the corrective user turn appended when the model
// produces neither text nor a tool call.
const RetryNudge = "Respond with a real output."

// RetryFallback is the terminal reply when the model stays empty after
// the maximum number of nudges.
const RetryFallback = "I wasn't able to produce a response. Please try again."

// ApprovalPending is the reply sent while a sensitive action waits for
// staff review.
const ApprovalPending = "I've sent your request to our staff for confirmation. I'll follow up as soon as it has been reviewed."
