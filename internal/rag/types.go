// Package rag answers questions, summarises and maps documents using only
// the asking user's own indexed chunks.
package rag

// Source identifies one chunk that contributed to an answer, in retrieval
// rank order (rank 1 is the closest match).
type Source struct {
	Rank       int    `json:"rank"`
	ChunkID    string `json:"chunk_id"`
	DocumentID int64  `json:"document_id"`
	Filename   string `json:"filename"`
	Page       int    `json:"page"`
}

// Answer is the result of one question: the generated text plus the
// sources it was grounded on. An answer with no sources means nothing
// relevant was found and no generation was attempted.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}
