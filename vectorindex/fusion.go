package vectorindex

import "sort"

// fuseRRF merges the dense and lexical rankings with reciprocal-rank fusion,
// weighting both lists equally. Raw RRF sums live near zero, so scores are
// normalized against the best achievable sum: a chunk ranked first in both
// lists scores 1.0 and a chunk seen by only one ranker tops out at 0.5. The
// store's score threshold is applied to this normalized scale.
func fuseRRF(dense, sparse []ScoredChunk, rrfK int) []ScoredChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	scores := make(map[string]float64, len(dense)+len(sparse))
	byID := make(map[string]ScoredChunk, len(dense)+len(sparse))

	for rank, hit := range dense {
		scores[hit.ChunkID] += 0.5 / float64(rrfK+rank+1)
		byID[hit.ChunkID] = hit
	}
	for rank, hit := range sparse {
		scores[hit.ChunkID] += 0.5 / float64(rrfK+rank+1)
		if _, seen := byID[hit.ChunkID]; !seen {
			byID[hit.ChunkID] = hit
		}
	}

	// Best possible raw sum: rank 1 in both lists.
	norm := float64(rrfK + 1)

	fused := make([]ScoredChunk, 0, len(scores))
	for id, score := range scores {
		hit := byID[id]
		hit.Score = score * norm
		fused = append(fused, hit)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	return fused
}

// topHits prunes fused hits below the score threshold and caps the result at
// k, keeping the descending order fuseRRF produced.
func topHits(fused []ScoredChunk, threshold float64, k int) []ScoredChunk {
	if k <= 0 {
		return nil
	}

	hits := make([]ScoredChunk, 0, k)
	for _, hit := range fused {
		if hit.Score < threshold {
			break
		}
		hits = append(hits, hit)
		if len(hits) == k {
			break
		}
	}
	return hits
}
