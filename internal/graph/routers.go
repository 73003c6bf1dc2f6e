package graph

// WordLimit routes to over when the latest message has more than threshold
// whitespace-separated words, and terminates otherwise.
func WordLimit(threshold int, over string) Router {
	return func(s State) Route {
		if WordCount(s.LastContent()) > threshold {
			return Goto(over)
		}
		return Terminate()
	}
}

// ToolCalls routes to toolsNode while the latest message declares pending
// tool invocations.
func ToolCalls(toolsNode string) Router {
	return func(s State) Route {
		if last, ok := s.Last(); ok && last.HasToolCalls() {
			return Goto(toolsNode)
		}
		return Terminate()
	}
}
