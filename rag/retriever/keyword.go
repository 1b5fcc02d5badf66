package retriever

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// keywordIndex is an Okapi BM25 index over chunk contents.
type keywordIndex struct {
	mu          sync.RWMutex
	docFreq     map[string]int
	postings    map[string]map[string]int
	chunkLength map[string]int
	totalLength int
	k1          float64
	b           float64
}

type keywordHit struct {
	ID    string
	Score float32
}

var termRegex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func newKeywordIndex() *keywordIndex {
	return &keywordIndex{
		docFreq:     make(map[string]int),
		postings:    make(map[string]map[string]int),
		chunkLength: make(map[string]int),
		k1:          1.6,
		b:           0.75,
	}
}

// add indexes content under id. Re-adding an id is a no-op.
func (k *keywordIndex) add(id, content string) {
	terms := terms(content)
	if len(terms) == 0 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.chunkLength[id]; ok {
		return
	}
	k.chunkLength[id] = len(terms)
	k.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := k.postings[term]; !ok {
			k.postings[term] = make(map[string]int)
		}
		k.postings[term][id]++
		if _, ok := seen[term]; !ok {
			k.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

// search returns up to limit hits ordered by descending score. Ties keep a
// stable order by id.
func (k *keywordIndex) search(query string, limit int) []keywordHit {
	queryTerms := unique(terms(query))
	if len(queryTerms) == 0 {
		return nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	docCount := len(k.chunkLength)
	if docCount == 0 {
		return nil
	}

	avgLen := float64(k.totalLength) / float64(docCount)
	scores := make(map[string]float64)
	for _, term := range queryTerms {
		postings := k.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(k.docFreq[term])
		idf := math.Log((float64(docCount)-df+0.5)/(df+0.5) + 1)
		for id, tf := range postings {
			docLen := float64(k.chunkLength[id])
			num := float64(tf) * (k.k1 + 1)
			den := float64(tf) + k.k1*(1-k.b+k.b*(docLen/avgLen))
			scores[id] += idf * (num / den)
		}
	}

	hits := make([]keywordHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, keywordHit{ID: id, Score: float32(score)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (k *keywordIndex) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.docFreq = make(map[string]int)
	k.postings = make(map[string]map[string]int)
	k.chunkLength = make(map[string]int)
	k.totalLength = 0
}

func (k *keywordIndex) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.chunkLength)
}

func terms(content string) []string {
	return termRegex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
