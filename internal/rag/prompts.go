package rag

import (
	"fmt"
	"strings"
)

// noInfoAnswer is returned verbatim when retrieval finds nothing; the
// generator is never consulted in that case.
const noInfoAnswer = "I don't have any information about that in your documents. Try uploading a document that covers this topic, or rephrase your question."

// degradedAnswer replaces the generated text when the language model
// fails after retrieval succeeded. The sources are still returned.
const degradedAnswer = "I found relevant passages in your documents but ran into a problem generating an answer. Please try again."

const answerPromptFormat = `You are a helpful assistant that answers questions using only the provided document excerpts.

Rules:
- Answer using ONLY the information in the excerpts below.
- If the excerpts do not contain the answer, say you don't know.
- Cite the source number of any excerpt you use, like [Source 2].
- Do not invent facts that are not in the excerpts.

Document excerpts:
%s

Question: %s

Answer:`

const summaryPromptFormat = `Write a concise summary of the following document. Cover the main topics and key points in a few paragraphs. Do not add information that is not in the text.

Document: %s

Text:
%s

Summary:`

const mindMapPromptFormat = `Build a mind map of the following document as JSON. Respond with ONLY a JSON object, no prose and no code fences, in this shape:

{"title": "...", "children": [{"title": "...", "children": [...]}]}

Keep it to at most three levels and base every node on the text.

Document: %s

Text:
%s`

// buildContext renders retrieved chunks as numbered, attributed excerpts.
func buildContext(chunks []scoredChunk) string {
	var b strings.Builder
	for _, sc := range chunks {
		fmt.Fprintf(&b, "[Source %d - %s, Page %d]\n%s\n\n", sc.rank, sc.filename, sc.chunk.PageNumber, sc.chunk.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripCodeFence removes a surrounding markdown code fence, which models
// add to JSON output even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
