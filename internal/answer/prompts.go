package answer

import (
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

const dsaPrompt = `You are an expert coding interview assistant helping with Data Structures & Algorithms questions.

Provide clear, optimal solutions that would impress interviewers:

1. Understand first: briefly clarify the problem if needed.
2. Approach: explain your thought process before coding.
3. Solution: clean, well-commented code (Python by default unless another language is requested).
4. Complexity: always state time and space complexity.
5. Edge cases: mention the important ones.
6. Optimization: when asked, discuss alternatives and trade-offs.

Start with a brief approach explanation, then the code, then the complexity analysis. Keep responses concise but complete.`

const systemDesignPrompt = `You are an expert system design interview assistant helping design scalable systems.

Provide designs that demonstrate senior-level thinking:

1. Requirements: clarify functional and non-functional requirements.
2. Estimation: do back-of-envelope calculations when relevant.
3. High-level design: describe the architecture in text.
4. Components: explain each major component and its purpose.
5. Data model: discuss schema and data flow.
6. Scalability: address scaling challenges and solutions.
7. Trade-offs: discuss design decisions and alternatives.

Be thorough but organized. Use bullet points and clear sections.`

const behavioralPrompt = `You are an expert behavioral interview assistant helping craft compelling stories.

Formulate strong STAR-method responses that showcase leadership, problem-solving, and growth:

- Situation: brief context. Task: the responsibility. Action: what the candidate specifically did (use "I", not "we"). Result: quantified impact when possible.
- Be specific, not generic. Show self-awareness and learning. Keep it to 2-3 minutes when spoken.

Label the STAR sections clearly. Make the story compelling but authentic.`

const followUpContext = `

This is a follow-up question in the same interview. Consider the previous context and build on the earlier discussion when relevant.`

// SystemPrompt returns the interview-type specific system prompt. Unknown
// types fall back to the coding prompt.
func SystemPrompt(t config.InterviewType) string {
	switch t {
	case config.InterviewSystemDesign:
		return systemDesignPrompt
	case config.InterviewBehavioral:
		return behavioralPrompt
	default:
		return dsaPrompt
	}
}

// buildMessages turns recent exchanges plus the current question into the
// chat message list, oldest exchange first.
func buildMessages(q Question, hist []history.Exchange) []llm.Message {
	msgs := make([]llm.Message, 0, len(hist)*2+1)
	for _, ex := range hist {
		if ex.Question == "" || ex.Answer == "" {
			continue
		}
		msgs = append(msgs,
			llm.Message{Role: "user", Content: ex.Question},
			llm.Message{Role: "assistant", Content: ex.Answer},
		)
	}
	return append(msgs, llm.Message{Role: "user", Content: q.Text})
}
