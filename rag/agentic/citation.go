package agentic

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	bracketPattern   = regexp.MustCompile(`\[([^\[\]\n]{1,300})\]`)
	positionPattern  = regexp.MustCompile(`(?i)^(.*?)(?:,\s*|\s+)(?:p\.|pp\.|pg\.|page)\s*(.+)$`)
	separatorPattern = regexp.MustCompile(`(?i)(?:,\s*|\s+)(?:p\.|pp\.|pg\.|page)\s*`)
	filePattern      = regexp.MustCompile(`\.[A-Za-z0-9]{1,5}$`)
	sentenceEnd      = regexp.MustCompile(`[.!?]\s|[。！？]|\n`)
)

type citationRef struct {
	source   string
	position string
}

// ParseCitations returns every citation the text claims, without checking
// them against any evidence. Bracketed text that does not look like a
// citation (no page marker and no file-like name) is ignored.
func ParseCitations(text string) []Citation {
	var out []Citation
	for _, m := range bracketPattern.FindAllStringSubmatchIndex(text, -1) {
		if isMarkdownLink(text, m[1]) {
			continue
		}
		refs := parseRefs(text[m[2]:m[3]], nil)
		for _, ref := range refs {
			if !looksLikeCitation(ref) {
				continue
			}
			out = append(out, Citation{
				ClaimSpan: claimSpan(text[:m[0]]),
				SourceID:  ref.source,
				Position:  ref.position,
			})
		}
	}
	return out
}

// BindCitations validates every citation marker in text against set and
// returns the answer with markers rewritten to canonical tags. A marker
// naming a known source but an unknown position is moved to the nearest
// known position of that source; a marker naming an unknown source is
// removed. Every returned citation exists in set. The function is pure.
func BindCitations(text string, set *EvidenceSet) Answer {
	idx := newCitationIndex(set)

	var b strings.Builder
	var citations []Citation
	dropped := 0
	last := 0
	for _, m := range bracketPattern.FindAllStringSubmatchIndex(text, -1) {
		if isMarkdownLink(text, m[1]) {
			continue
		}
		refs := parseRefs(text[m[2]:m[3]], idx)
		if !anyCitation(refs, idx) {
			continue
		}

		b.WriteString(text[last:m[0]])
		last = m[1]
		span := claimSpan(b.String())

		var tags []string
		for _, ref := range refs {
			cite, ok := idx.resolve(ref)
			if !ok {
				dropped++
				continue
			}
			cite.ClaimSpan = span
			citations = append(citations, cite)
			tags = append(tags, refTag(cite))
		}
		if len(tags) == 0 {
			trimmed := strings.TrimRight(b.String(), " \t")
			b.Reset()
			b.WriteString(trimmed)
			continue
		}
		fmt.Fprintf(&b, "[%s]", strings.Join(tags, "; "))
	}
	b.WriteString(text[last:])

	return Answer{
		Text:      strings.TrimSpace(b.String()),
		Citations: citations,
		Dropped:   dropped,
	}
}

func isMarkdownLink(text string, end int) bool {
	return end < len(text) && text[end] == '('
}

// parseRefs splits a marker into source/position pairs. When idx is set, a
// known source name wins over the page-marker heuristic, so names that
// contain "page" or "p." survive.
func parseRefs(inner string, idx *citationIndex) []citationRef {
	var refs []citationRef
	for _, part := range strings.Split(inner, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if ref, ok := knownRef(part, idx); ok {
			refs = append(refs, ref)
			continue
		}
		if m := positionPattern.FindStringSubmatch(part); m != nil && strings.TrimSpace(m[1]) != "" {
			refs = append(refs, citationRef{
				source:   strings.TrimSpace(m[1]),
				position: strings.TrimSpace(m[2]),
			})
			continue
		}
		refs = append(refs, citationRef{source: part})
	}
	return refs
}

// knownRef resolves part against the known sources: the whole part first,
// then the text before each page separator, last separator first.
func knownRef(part string, idx *citationIndex) (citationRef, bool) {
	if idx == nil {
		return citationRef{}, false
	}
	if _, ok := idx.matchSource(part); ok {
		return citationRef{source: part}, true
	}
	locs := separatorPattern.FindAllStringIndex(part, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		source := strings.TrimSpace(part[:locs[i][0]])
		position := strings.TrimSpace(part[locs[i][1]:])
		if source == "" || position == "" {
			continue
		}
		if _, ok := idx.matchSource(source); ok {
			return citationRef{source: source, position: position}, true
		}
	}
	return citationRef{}, false
}

func looksLikeCitation(ref citationRef) bool {
	return ref.position != "" || filePattern.MatchString(ref.source)
}

func anyCitation(refs []citationRef, idx *citationIndex) bool {
	for _, ref := range refs {
		if looksLikeCitation(ref) {
			return true
		}
		if _, ok := idx.matchSource(ref.source); ok {
			return true
		}
	}
	return false
}

// claimSpan is the sentence fragment that precedes a marker.
func claimSpan(prefix string) string {
	prefix = bracketPattern.ReplaceAllString(prefix, "")
	locs := sentenceEnd.FindAllStringIndex(prefix, -1)
	if len(locs) > 0 {
		prefix = prefix[locs[len(locs)-1][1]:]
	}
	return strings.TrimSpace(prefix)
}

func refTag(c Citation) string {
	if c.Position == "" {
		return c.SourceID
	}
	return c.SourceID + ", p. " + c.Position
}

// citationIndex is a read-only view of the sources and positions in a set.
type citationIndex struct {
	sources   map[string][]string
	sourceIDs []string // sorted, for deterministic fuzzy matching
}

func newCitationIndex(set *EvidenceSet) *citationIndex {
	sources := set.Sources()
	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &citationIndex{sources: sources, sourceIDs: ids}
}

// matchSource finds the known source a claimed name refers to: exact,
// then case-insensitive, then by base name.
func (idx *citationIndex) matchSource(claimed string) (string, bool) {
	if _, ok := idx.sources[claimed]; ok {
		return claimed, true
	}
	for _, id := range idx.sourceIDs {
		if strings.EqualFold(id, claimed) {
			return id, true
		}
	}
	base := baseName(claimed)
	for _, id := range idx.sourceIDs {
		if strings.EqualFold(baseName(id), base) {
			return id, true
		}
	}
	return "", false
}

func (idx *citationIndex) resolve(ref citationRef) (Citation, bool) {
	source, ok := idx.matchSource(ref.source)
	if !ok {
		return Citation{}, false
	}
	positions := idx.sources[source]
	cite := Citation{SourceID: source, Rewritten: source != ref.source}

	want := normalizePosition(ref.position)
	for _, pos := range positions {
		if pos == want || (want != "" && samePosition(pos, want)) {
			cite.Position = pos
			return cite, true
		}
	}
	cite.Position = nearestPosition(positions, want)
	cite.Rewritten = true
	return cite, true
}

func normalizePosition(pos string) string {
	pos = strings.TrimSpace(pos)
	lower := strings.ToLower(pos)
	for _, prefix := range []string{"p.", "pp.", "page"} {
		if strings.HasPrefix(lower, prefix) {
			pos = strings.TrimSpace(pos[len(prefix):])
			break
		}
	}
	return strings.TrimSpace(strings.TrimRight(pos, ".,"))
}

func samePosition(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na == nb
	}
	return strings.EqualFold(a, b)
}

// nearestPosition picks the numerically closest known position, preferring
// the lower one on ties. Without numbers to compare it picks the smallest
// known position.
func nearestPosition(positions []string, want string) string {
	sorted := append([]string(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return lessPosition(sorted[i], sorted[j]) })

	target, err := strconv.Atoi(leadingNumber(want))
	if err != nil {
		return sorted[0]
	}
	best := ""
	bestDist := -1
	for _, pos := range sorted {
		n, err := strconv.Atoi(pos)
		if err != nil {
			continue
		}
		dist := n - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = pos, dist
		}
	}
	if best == "" {
		return sorted[0]
	}
	return best
}

func lessPosition(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

func leadingNumber(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(path))
}
