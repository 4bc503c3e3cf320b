package llm

import "fmt"

const promptTemplate = `You are a documentation assistant. Answer the question using ONLY the context below. If the context does not contain enough information to answer, say so plainly instead of guessing. Answer in %s and name the sources you relied on by their [Source: ...] labels.

Context:
%s

Question: %s

Answer:`

// BuildPrompt renders the grounding prompt for one question over the
// assembled context.
func (c *Client) BuildPrompt(question, context string) string {
	return fmt.Sprintf(promptTemplate, c.answerLanguage, context, question)
}
