// Package embedding computes text embeddings through the content cache.
//
// Every text is looked up by the hash of its content before the model is
// called, misses are embedded in batches on a worker pool with retry and
// exponential backoff, and vectors are L2-normalized before they are cached
// so cosine similarity reduces to a dot product.
package embedding
