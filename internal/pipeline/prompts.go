package pipeline

const (
	// FactsPrefix starts the researcher's message so the writer can tell
	// gathered facts from the user's request.
	FactsPrefix = "FACTS:\n"

	WriterPrompt = "Write a very detailed, comprehensive blog post (at least 300 words) about these facts."

	// ChatWriterPrompt is the shorter article brief used behind the chat UI.
	ChatWriterPrompt = "You are a Journalist. Write a 200-word article based on these facts."

	EditorPrompt = "You are an Editor. The following article is too long. Summarize it into a punchy 100-word version."

	// FallbackMessage replaces the writer's draft when the completion service
	// stays unavailable and a fallback is enabled.
	FallbackMessage = "I apologize, the AI service is currently unavailable."
)
