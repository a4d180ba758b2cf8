package match

import (
	"strings"
	"unicode"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/expr"
	"golang.org/x/text/cases"
)

type textSearch struct {
	terms    []string
	negated  []string
	caseFold bool
}

func parseText(v docpipe.Value) (*textSearch, error) {
	if !v.IsDocument() {
		return nil, badValue("$text expects an object")
	}
	ts := &textSearch{caseFold: true}
	var search string
	var found bool
	for _, f := range v.Document().Fields() {
		switch f.Name {
		case "$search":
			if f.Value.Kind() != docpipe.KindString {
				return nil, badValue("$search requires a string value")
			}
			search, found = f.Value.Str(), true
		case "$language":
			if f.Value.Kind() != docpipe.KindString {
				return nil, badValue("$language requires a string value")
			}
		case "$caseSensitive":
			if f.Value.Kind() != docpipe.KindBool {
				return nil, badValue("$caseSensitive requires a boolean value")
			}
			ts.caseFold = !f.Value.Bool()
		case "$diacriticSensitive":
		default:
			return nil, badValue("extra fields in $text: %s", f.Name)
		}
	}
	if !found {
		return nil, badValue("$search required")
	}
	folder := cases.Fold()
	for _, term := range tokenize(search) {
		negate := strings.HasPrefix(term, "-")
		term = strings.TrimLeft(term, "-")
		if term == "" {
			continue
		}
		term = ts.normalize(folder, term)
		if negate {
			ts.negated = append(ts.negated, term)
		} else if !contains(ts.terms, term) {
			ts.terms = append(ts.terms, term)
		}
	}
	return ts, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-')
	})
}

// normalize folds s when the search is case insensitive.  Casers carry
// state so each caller passes its own.
func (t *textSearch) normalize(folder cases.Caser, s string) string {
	if t.caseFold {
		return folder.String(s)
	}
	return s
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// score is the number of distinct search terms present among the words of
// every string in doc, or zero when a negated term is present.
func (t *textSearch) score(doc *docpipe.Document) float64 {
	words := make(map[string]struct{})
	t.collect(cases.Fold(), docpipe.NewDocumentValue(doc), words)
	for _, term := range t.negated {
		if _, ok := words[term]; ok {
			return 0
		}
	}
	var n int
	for _, term := range t.terms {
		if _, ok := words[term]; ok {
			n++
		}
	}
	return float64(n)
}

func (t *textSearch) collect(folder cases.Caser, v docpipe.Value, words map[string]struct{}) {
	switch v.Kind() {
	case docpipe.KindString:
		for _, w := range tokenize(v.Str()) {
			words[t.normalize(folder, strings.Trim(w, "-"))] = struct{}{}
		}
	case docpipe.KindDocument:
		for _, f := range v.Document().Fields() {
			t.collect(folder, f.Value, words)
		}
	case docpipe.KindArray:
		for _, elem := range v.Array() {
			t.collect(folder, elem, words)
		}
	}
}

// Apply matches doc and, when f has a $text predicate, returns doc with
// its textScore metadata set.
func (f *Filter) Apply(ectx *expr.Context, doc *docpipe.Document) (*docpipe.Document, bool, error) {
	ok, err := f.Match(ectx, doc)
	if err != nil || !ok {
		return nil, false, err
	}
	if f.text != nil {
		doc = doc.WithMeta(expr.MetaTextScore, docpipe.NewDouble(f.text.score(doc)))
	}
	return doc, true, nil
}
