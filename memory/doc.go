// Package memory provides the retrieval-augmented working memory of a conversation.
//
// A conversation remembers two things:
//   - History: the ordered turns of the dialogue, persisted append-only
//   - Documents: snippets ingested from web search, deduplicated by content hash
//
// Architecture:
//   - HistoryStore: durable conversation log (file-backed in store/file)
//   - DocumentLog: durable, deduplicated document log (JSONL in store/file)
//   - VectorIndex: embeddings of every document, rebuilt wholesale from the log (store/chromem)
//   - Embedder: text-to-vector conversion (mock for tests, ONNX for local, cache decorator)
//   - Retriever: picks the best document and applies the relevance threshold
//   - Ingestor: cleans search results, appends them, reloads the index once per batch
//
// The index is derived state. It never receives single documents; every change to
// the document log is followed by Reload with the full log so the two cannot drift.
//
// None of these types lock across each other. Callers that share one conversation
// between goroutines must serialize access (see engine.Conversation).
package memory
