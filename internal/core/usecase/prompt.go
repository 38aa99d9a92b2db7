package usecase

import "fmt"

const systemPromptTemplate = `You are a helpful assistant that answers questions about a PDF document.

You are given the following document context:
%s

Answer strictly from this context. If the context does not contain the information needed, say so clearly instead of guessing. Keep answers concise but informative.`

func buildSystemPrompt(fileName, context string) string {
	if context == "" {
		context = "(no relevant passages were found in the document)"
	}
	if fileName != "" {
		context = fmt.Sprintf("Document: %s\n\n%s", fileName, context)
	}
	return fmt.Sprintf(systemPromptTemplate, context)
}
