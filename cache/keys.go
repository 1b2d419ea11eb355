// Copyright 2025 The sopcompliance Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import "time"

// TTL classes. Longer-lived data changes less often and costs more to rebuild.
const (
	TTLCatalog    = 7 * 24 * time.Hour
	TTLEmbeddings = 24 * time.Hour
	TTLResults    = time.Hour
)

// Key prefixes, one per payload class.
const (
	catalogPrefix           = "catalog:"
	embeddingPrefix         = "embeddings:"
	documentEmbeddingPrefix = "doc_embeddings:"
	resultPrefix            = "compliance:"
)

// CatalogKey returns the key of a whole control catalog.
func CatalogKey(name string) string {
	return catalogPrefix + name
}

// EmbeddingKey returns the key of one text embedding produced by model.
func EmbeddingKey(model, hash string) string {
	return embeddingPrefix + model + ":" + hash
}

// DocumentEmbeddingKey returns the key of the chunk embeddings of one document.
func DocumentEmbeddingKey(model, hash string) string {
	return documentEmbeddingPrefix + model + ":" + hash
}

// ResultKey returns the key of a cached compliance report.
func ResultKey(method, hash string) string {
	return resultPrefix + method + ":" + hash
}
