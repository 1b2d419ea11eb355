// Package analysis turns raw SOP text into a compliance report.
//
// An Analyzer segments the document, embeds its chunks through the content
// cache, computes topical features, scores every catalog control and
// aggregates the results. Chunk embeddings are cached by document content and
// window settings; complete reports additionally by scoring method, keyword
// policy and catalog fingerprint.
//
// AnalyzeAll analyzes several documents concurrently on a worker pool.
package analysis
