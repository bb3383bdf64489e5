package usecase

import (
	"github.com/kirillkom/script-rating/internal/core/domain"
)

// corpusSnapshot is one immutable generation of the reference corpus.
// Readers load it through an atomic pointer and never lock; writers build a
// new snapshot and swap it in.
type corpusSnapshot struct {
	documents []domain.ReferenceDocument
	excerpts  []domain.ReferenceExcerpt
	byID      map[string]int
	terms     *termIndex
	maxSeq    int64
}

// newCorpusSnapshot takes ownership of docs and excerpts. Excerpts must
// already be in Seq order.
func newCorpusSnapshot(docs []domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) *corpusSnapshot {
	s := &corpusSnapshot{
		documents: docs,
		excerpts:  excerpts,
		byID:      make(map[string]int, len(excerpts)),
	}
	texts := make([]string, len(excerpts))
	for i, ex := range excerpts {
		s.byID[ex.ID] = i
		texts[i] = ex.Text
		if ex.Seq > s.maxSeq {
			s.maxSeq = ex.Seq
		}
	}
	s.terms = buildTermIndex(texts)
	return s
}

func emptyCorpusSnapshot() *corpusSnapshot {
	return newCorpusSnapshot(nil, nil)
}

// candidates returns excerpt positions admitted by filter, in Seq order.
func (s *corpusSnapshot) candidates(filter domain.QueryFilter) []int {
	out := make([]int, 0, len(s.excerpts))
	for i, ex := range s.excerpts {
		if filter.Category != "" && ex.CategoryHint != filter.Category {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (s *corpusSnapshot) hasDocument(id string) bool {
	for _, d := range s.documents {
		if d.ID == id {
			return true
		}
	}
	return false
}

// with returns a new snapshot that also holds doc and its excerpts.
func (s *corpusSnapshot) with(doc domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) *corpusSnapshot {
	docs := make([]domain.ReferenceDocument, 0, len(s.documents)+1)
	docs = append(docs, s.documents...)
	docs = append(docs, doc)

	all := make([]domain.ReferenceExcerpt, 0, len(s.excerpts)+len(excerpts))
	all = append(all, s.excerpts...)
	all = append(all, excerpts...)
	return newCorpusSnapshot(docs, all)
}

// without returns a new snapshot with documentID and its excerpts removed.
func (s *corpusSnapshot) without(documentID string) *corpusSnapshot {
	docs := make([]domain.ReferenceDocument, 0, len(s.documents))
	for _, d := range s.documents {
		if d.ID != documentID {
			docs = append(docs, d)
		}
	}
	kept := make([]domain.ReferenceExcerpt, 0, len(s.excerpts))
	for _, ex := range s.excerpts {
		if ex.DocumentID != documentID {
			kept = append(kept, ex)
		}
	}
	next := newCorpusSnapshot(docs, kept)
	if next.maxSeq < s.maxSeq {
		next.maxSeq = s.maxSeq
	}
	return next
}
