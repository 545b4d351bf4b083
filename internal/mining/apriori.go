package mining

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cxr-association-engine/internal/domain"
)

// parallelThreshold is the candidate count below which support counting stays sequential.
const parallelThreshold = 64

// MinerOptions controls the Apriori search.
type MinerOptions struct {
	MinSupport float64
	// MaxLen bounds the itemset size; 0 means unbounded.
	MaxLen int
	// Workers bounds concurrent support counting; values below 2 count sequentially.
	Workers int
}

type candidate struct {
	cols  []int
	count int
}

// Apriori returns every itemset whose support is at least opts.MinSupport, ordered by
// size and then signature. An empty result is valid and means no pattern was found.
//
// Level k candidates join two frequent (k-1)-itemsets sharing their first k-2 columns,
// and a candidate is dropped unless all of its (k-1)-subsets are frequent.
func Apriori(ctx context.Context, m *Matrix, opts MinerOptions) ([]domain.Itemset, error) {
	if m == nil || m.NumTransactions() == 0 {
		return nil, domain.NewDataError("matrix", "no transactions to mine")
	}
	if opts.MinSupport <= 0 || opts.MinSupport > 1 {
		return nil, domain.NewDataError("min_support", fmt.Sprintf("must be in (0,1], got %v", opts.MinSupport))
	}

	n := float64(m.NumTransactions())
	var result []domain.Itemset

	level := make([]*candidate, len(m.Universe))
	for i := range m.Universe {
		level[i] = &candidate{cols: []int{i}}
	}

	for k := 1; len(level) > 0; k++ {
		if opts.MaxLen > 0 && k > opts.MaxLen {
			break
		}
		if err := countSupport(ctx, m, level, opts.Workers); err != nil {
			return nil, err
		}

		frequent := level[:0]
		for _, c := range level {
			support := float64(c.count) / n
			if support >= opts.MinSupport {
				frequent = append(frequent, c)
				result = append(result, domain.Itemset{Items: m.items(c.cols), Support: support})
			}
		}
		if len(frequent) == 0 {
			break
		}
		level = nextCandidates(frequent)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Len() != result[j].Len() {
			return result[i].Len() < result[j].Len()
		}
		return result[i].Signature() < result[j].Signature()
	})
	return result, nil
}

// nextCandidates builds the level k+1 candidates from the frequent level k itemsets.
// Input itemsets are sorted column lists; they are visited in lexicographic order.
func nextCandidates(frequent []*candidate) []*candidate {
	sort.Slice(frequent, func(i, j int) bool { return lessCols(frequent[i].cols, frequent[j].cols) })

	known := make(map[string]struct{}, len(frequent))
	for _, c := range frequent {
		known[colsKey(c.cols)] = struct{}{}
	}

	var next []*candidate
	for i := 0; i < len(frequent); i++ {
		a := frequent[i].cols
		for j := i + 1; j < len(frequent); j++ {
			b := frequent[j].cols
			if !samePrefix(a, b) {
				break
			}
			cols := make([]int, len(a)+1)
			copy(cols, a)
			cols[len(a)] = b[len(b)-1]
			if allSubsetsKnown(cols, known) {
				next = append(next, &candidate{cols: cols})
			}
		}
	}
	return next
}

// allSubsetsKnown checks the downward closure property for a candidate.
func allSubsetsKnown(cols []int, known map[string]struct{}) bool {
	if len(cols) <= 2 {
		return true
	}
	sub := make([]int, 0, len(cols)-1)
	for skip := range cols {
		sub = sub[:0]
		for i, c := range cols {
			if i != skip {
				sub = append(sub, c)
			}
		}
		if _, ok := known[colsKey(sub)]; !ok {
			return false
		}
	}
	return true
}

// countSupport fills in the transaction count of every candidate. Each worker writes
// only to its own chunk of candidates.
func countSupport(ctx context.Context, m *Matrix, level []*candidate, workers int) error {
	if workers < 2 || len(level) < parallelThreshold {
		for _, c := range level {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.count = m.count(c.cols)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (len(level) + workers - 1) / workers
	for start := 0; start < len(level); start += chunk {
		end := start + chunk
		if end > len(level) {
			end = len(level)
		}
		part := level[start:end]
		g.Go(func() error {
			for _, c := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				c.count = m.count(c.cols)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Matrix) items(cols []int) []domain.Item {
	items := make([]domain.Item, len(cols))
	for i, c := range cols {
		items[i] = m.Universe[c]
	}
	return items
}

func samePrefix(a, b []int) bool {
	for i := 0; i < len(a)-1; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lessCols(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func colsKey(cols []int) string {
	var sb strings.Builder
	for i, c := range cols {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}
