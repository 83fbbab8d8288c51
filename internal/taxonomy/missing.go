package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

// Lookup returns the ids of the requested labels that appear in known, in
// request order. Labels without an id are skipped.
func Lookup(known map[string]int, requested []string, caseInsensitive bool) []int {
	index := known
	if caseInsensitive {
		index = foldKeys(known)
	}
	var ids []int
	for _, l := range requested {
		if caseInsensitive {
			l = strings.ToLower(l)
		}
		if id, ok := index[l]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// IdentifyMissing reports which requested labels could not be resolved.
//
// It returns nil when every requested label produced an id, i.e. when
// requested and resolved have the same length. Otherwise it returns the
// requested labels absent from known, spelled as requested. That result is
// never nil but can be empty when the gap comes from somewhere else.
func IdentifyMissing(known map[string]int, requested []string, resolved []int, caseInsensitive bool) []string {
	if len(requested) == len(resolved) {
		return nil
	}
	index := known
	if caseInsensitive {
		index = foldKeys(known)
	}
	missing := []string{}
	for _, l := range requested {
		key := l
		if caseInsensitive {
			key = strings.ToLower(l)
		}
		if _, ok := index[key]; !ok {
			missing = append(missing, l)
		}
	}
	return missing
}

func foldKeys(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// TermCreator creates a taxonomy term on the site and returns its id.
//
// Implemented by [wordpress.Client].
type TermCreator interface {
	CreateTerm(ctx context.Context, t model.Taxonomy, term wordpress.Term) (int, error)
}

// Resolution is the outcome of [Resolve].
type Resolution struct {
	// IDs holds the ids of every requested label that ended up with one:
	// known ids first in request order, then the created ones.
	IDs []int
	// Created maps each newly created label to its id.
	Created map[string]int
	// Failed lists labels that could not be created.
	Failed []string
}

// Resolve maps requested labels of taxonomy t to ids, asking creator for the
// ones known does not have. A label that cannot be created does not stop the
// others; the failures are joined into the returned error and also listed in
// Resolution.Failed. known is not modified.
func Resolve(ctx context.Context, t model.Taxonomy, known map[string]int, requested []string, creator TermCreator, caseInsensitive bool) (Resolution, error) {
	res := Resolution{IDs: Lookup(known, requested, caseInsensitive)}
	missing := IdentifyMissing(known, requested, res.IDs, caseInsensitive)
	if len(missing) == 0 {
		return res, nil
	}

	res.Created = make(map[string]int, len(missing))
	seen := make(map[string]bool, len(missing))
	var errs []error
	for _, label := range missing {
		key := label
		if caseInsensitive {
			key = strings.ToLower(label)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		id, err := creator.CreateTerm(ctx, t, wordpress.Term{Name: label})
		if err != nil {
			res.Failed = append(res.Failed, label)
			errs = append(errs, fmt.Errorf("creating %s %q: %w", t, label, err))
			continue
		}
		res.Created[label] = id
		res.IDs = append(res.IDs, id)
	}
	return res, errors.Join(errs...)
}
