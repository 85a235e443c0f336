package graph

import (
	"context"
	"sort"

	"github.com/provchain/semchain/src/crypto"
	"golang.org/x/sync/errgroup"
)

// Sentinels substituted for blank identifiers before hashing.
const (
	SubjectBlank = "SUBJ_BLANK"
	ObjectBlank  = "OBJ_BLANK"
)

// StatementDigest hashes a single statement with blank subjects and objects
// replaced by their sentinels.
func StatementDigest(s Statement) Digest {
	subject := s.Subject.String()
	if s.Subject.IsBlank() {
		subject = SubjectBlank
	}
	object := s.Object.String()
	if s.Object.IsBlank() {
		object = ObjectBlank
	}

	d, _ := DigestFromBytes(crypto.SHA256Of(
		[]byte(subject),
		[]byte(s.Predicate.String()),
		[]byte(object),
	))
	return d
}

// Canonicalize returns the digest of the graph. Two graphs holding the same
// statements up to blank identifier renaming and ordering have the same
// digest. The graph name does not contribute.
func Canonicalize(g *NamedGraph) Digest {
	n := len(g.Statements)

	own := make([]Digest, n)
	bySubject := make(map[string][]int)
	byObject := make(map[string][]int)

	for i, s := range g.Statements {
		own[i] = StatementDigest(s)
		if s.Subject.IsBlank() {
			bySubject[s.Subject.Value] = append(bySubject[s.Subject.Value], i)
		}
		if s.Object.IsBlank() {
			byObject[s.Object.Value] = append(byObject[s.Object.Value], i)
		}
	}

	values := make([]Digest, n)
	for i, s := range g.Statements {
		if !s.HasBlank() {
			values[i] = own[i]
			continue
		}

		neighbours := []Digest{}
		if s.Subject.IsBlank() {
			for _, j := range byObject[s.Subject.Value] {
				if j != i {
					neighbours = append(neighbours, own[j])
				}
			}
		}
		if s.Object.IsBlank() {
			for _, j := range bySubject[s.Object.Value] {
				if j != i {
					neighbours = append(neighbours, own[j])
				}
			}
		}

		values[i] = fold(own[i], neighbours)
	}

	return combine(values)
}

// fold hashes a statement digest together with its sorted neighbours.
func fold(self Digest, neighbours []Digest) Digest {
	sortDigests(neighbours)
	parts := make([][]byte, 0, len(neighbours)+1)
	parts = append(parts, self.Bytes())
	for i := range neighbours {
		parts = append(parts, neighbours[i].Bytes())
	}
	d, _ := DigestFromBytes(crypto.SHA256Of(parts...))
	return d
}

// combine is the order-insensitive combiner: sort, concatenate, hash.
func combine(values []Digest) Digest {
	sortDigests(values)
	parts := make([][]byte, len(values))
	for i := range values {
		parts[i] = values[i].Bytes()
	}
	d, _ := DigestFromBytes(crypto.SHA256Of(parts...))
	return d
}

func sortDigests(ds []Digest) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Less(ds[j]) })
}

// CanonicalizeAll canonicalizes several graphs on at most workers goroutines.
// The result is index-aligned with graphs.
func CanonicalizeAll(ctx context.Context, graphs []*NamedGraph, workers int) ([]Digest, error) {
	if workers <= 0 {
		workers = 1
	}

	res := make([]Digest, len(graphs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range graphs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res[i] = Canonicalize(graphs[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
