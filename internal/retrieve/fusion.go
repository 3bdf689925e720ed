package retrieve

import (
	"sort"

	"github.com/streamharvest/streamharvest/internal/rag"
)

// sourceList is one backend's ranked result list entering fusion, best first.
type sourceList struct {
	Source string
	Items  []rag.ResultItem
}

// fusedItem accumulates the RRF contributions for one content hash.
type fusedItem struct {
	item      rag.ResultItem
	firstSeen int
}

// fuse merges per-source ranked lists with weighted Reciprocal Rank Fusion
// and deduplicates by content hash.
//
// Each occurrence contributes weight/(k+rank) with 1-based ranks. Ordering is
// fully deterministic: fused score descending, then first-seen order across
// the source lists (which arrive in sink declaration order), then content
// hash. The result is truncated to topK.
func fuse(lists []sourceList, weights map[string]float64, k, topK int) []rag.ResultItem {
	byHash := make(map[string]*fusedItem)
	order := 0

	for _, list := range lists {
		weight := weights[list.Source]
		for rank, item := range list.Items {
			contribution := weight / float64(k+rank+1)

			f, ok := byHash[item.ContentHash]
			if !ok {
				// The first-seen source supplies all carried fields,
				// including the channel and publish date the policy
				// enforcer authorizes against.
				f = &fusedItem{
					item: rag.ResultItem{
						ContentHash:   item.ContentHash,
						DocID:         item.DocID,
						ChunkID:       item.ChunkID,
						TextSnippet:   item.TextSnippet,
						ChannelID:     item.ChannelID,
						PublishedAt:   item.PublishedAt,
						RankPerSource: make(map[string]int),
					},
					firstSeen: order,
				}
				byHash[item.ContentHash] = f
				order++
			}
			if f.item.ChannelID == "" {
				f.item.ChannelID = item.ChannelID
			}
			if f.item.PublishedAt == nil {
				f.item.PublishedAt = item.PublishedAt
			}
			f.item.Score += contribution
			f.item.Sources = append(f.item.Sources, list.Source)
			f.item.RankPerSource[list.Source] = rank + 1
		}
	}

	fused := make([]*fusedItem, 0, len(byHash))
	for _, f := range byHash {
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.item.Score != b.item.Score {
			return a.item.Score > b.item.Score
		}
		if a.firstSeen != b.firstSeen {
			return a.firstSeen < b.firstSeen
		}
		return a.item.ContentHash < b.item.ContentHash
	})

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}

	items := make([]rag.ResultItem, len(fused))
	for i, f := range fused {
		items[i] = f.item
	}
	return items
}
