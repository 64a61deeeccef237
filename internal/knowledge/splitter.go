package knowledge

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most ChunkSize characters, trying
// paragraph, line and word boundaries in that order, with ChunkOverlap
// characters shared between neighbouring chunks.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separators:   defaultSeparators,
	}
}

func (s Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

func (s Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, good []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if length(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, sep)...)
	}
	return out
}

func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := length(sep)
	var docs, current []string
	total := 0

	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		l := length(p)
		if total+l+joinLen() > s.ChunkSize {
			if len(current) > 0 {
				if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
					docs = append(docs, doc)
				}
				for total > s.ChunkOverlap || (total > 0 && total+l+joinLen() > s.ChunkSize) {
					drop := length(current[0])
					if len(current) > 1 {
						drop += sepLen
					}
					total -= drop
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
