package scoring

import (
	"context"
	"fmt"

	"github.com/gautam1sharma/sopcompliance/core"
)

// Cluster is a topical feature described by reference sentences.
type Cluster struct {
	Name       string
	References []string
}

// Features maps cluster names to the number of chunks related to the cluster.
// Clusters without related chunks are absent.
type Features map[string]int

// DefaultClusters returns the built-in topical clusters.
func DefaultClusters() []Cluster {
	return []Cluster{
		{Name: "policies", References: []string{
			"Information security policy and procedures",
			"Policy management and governance",
			"Security standards and guidelines",
		}},
		{Name: "access_control", References: []string{
			"User access management and authentication",
			"Authorization and permission controls",
			"Identity and access management",
		}},
		{Name: "asset_management", References: []string{
			"Asset classification and inventory",
			"Data protection and handling",
			"Information asset management",
		}},
		{Name: "training", References: []string{
			"Security awareness and training",
			"Employee education programs",
			"Competency development",
		}},
		{Name: "incident_management", References: []string{
			"Security incident response",
			"Breach management and reporting",
			"Event monitoring and detection",
		}},
	}
}

// DefaultClusterMap returns the built-in mapping of control ids to clusters.
func DefaultClusterMap() map[string][]string {
	return map[string][]string{
		"5.1":  {"policies"},
		"5.2":  {"policies"},
		"9.1":  {"access_control"},
		"9.2":  {"access_control"},
		"9.3":  {"access_control"},
		"9.4":  {"access_control"},
		"8.1":  {"asset_management"},
		"8.2":  {"asset_management"},
		"7.2":  {"training"},
		"16.1": {"incident_management"},
	}
}

// Features counts, per cluster, the chunks whose best similarity to any of
// the cluster's reference sentences exceeds BaselineThreshold.
func (e *Engine) Features(ctx context.Context, chunks []core.Chunk) (Features, error) {
	features := make(Features)
	if len(chunks) == 0 {
		return features, nil
	}

	references, err := e.clusterEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	for ci, cluster := range e.clusters {
		count := 0
		for _, chunk := range chunks {
			best := 0.0
			for _, ref := range references[ci] {
				if sim := Cosine(chunk.Embedding, ref); sim > best {
					best = sim
				}
			}
			if best > BaselineThreshold {
				count++
			}
		}
		if count > 0 {
			features[cluster.Name] = count
		}
	}
	return features, nil
}

// clusterEmbeddings embeds every cluster's reference sentences once per
// engine. The vectors themselves are cached by the pipeline.
func (e *Engine) clusterEmbeddings(ctx context.Context) ([][][]float32, error) {
	e.refMu.Lock()
	defer e.refMu.Unlock()
	if e.refVectors != nil {
		return e.refVectors, nil
	}

	vectors := make([][][]float32, len(e.clusters))
	for i, cluster := range e.clusters {
		v, err := e.pipeline.EmbedTexts(ctx, cluster.References)
		if err != nil {
			return nil, fmt.Errorf("embedding cluster %s: %w", cluster.Name, err)
		}
		vectors[i] = v
	}
	e.refVectors = vectors
	return vectors, nil
}

// featureBonus is the contextual bonus of a control: the related chunk count
// of its clusters divided by FeatureNormalizer, capped at 1.
func (e *Engine) featureBonus(controlID string, features Features) float64 {
	clusters := e.clusterMap[controlID]
	if len(clusters) == 0 {
		return 0
	}
	total := 0
	for _, name := range clusters {
		total += features[name]
	}
	return min(float64(total)/FeatureNormalizer, 1)
}

// Warm embeds the cluster reference sentences ahead of the first analysis.
func (e *Engine) Warm(ctx context.Context) error {
	_, err := e.clusterEmbeddings(ctx)
	return err
}
