// Package mining implements the transaction encoder, the Apriori frequent itemset
// miner and the association rule generator.
package mining

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/cxr-association-engine/internal/domain"
)

// DefaultDelimiter separates findings inside a multi-label field.
const DefaultDelimiter = "|"

// DefaultNoFindingLabel marks a record without findings. It is mined as its own item.
const DefaultNoFindingLabel = "No Finding"

// Matrix is the one-hot encoding of a transaction set. Rows[t][i] is true iff
// transaction t contains Universe[i]. Columns are also kept as bitsets for counting.
type Matrix struct {
	Universe []domain.Item
	Rows     [][]bool

	index   map[domain.Item]int
	columns []bitset
}

// ParseTransaction splits a raw multi-label field into a transaction.
// A blank field yields the no-finding sentinel as a singleton.
func ParseTransaction(field, delimiter, noFinding string) domain.Transaction {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if noFinding == "" {
		noFinding = DefaultNoFindingLabel
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return domain.NewTransaction(noFinding)
	}
	tx := domain.NewTransaction(strings.Split(field, delimiter)...)
	if len(tx) == 0 {
		return domain.NewTransaction(noFinding)
	}
	return tx
}

// Encode builds the item universe (lexicographic order) and the boolean membership
// matrix for transactions. The same set of transactions always yields the same
// column order, whatever order they arrive in.
func Encode(transactions []domain.Transaction) (*Matrix, error) {
	if len(transactions) == 0 {
		return nil, domain.NewDataError("transactions", "no transactions to encode")
	}

	normalized := make([]domain.Transaction, len(transactions))
	seen := make(map[domain.Item]struct{})
	for t, tx := range transactions {
		labels := make([]string, len(tx))
		for i, item := range tx {
			labels[i] = string(item)
		}
		norm := domain.NewTransaction(labels...)
		if len(norm) == 0 {
			return nil, domain.NewDataError("transactions", fmt.Sprintf("transaction %d has no items", t))
		}
		normalized[t] = norm
		for _, item := range norm {
			if err := domain.CheckItem(item); err != nil {
				return nil, err
			}
			seen[item] = struct{}{}
		}
	}

	universe := make([]domain.Item, 0, len(seen))
	for item := range seen {
		universe = append(universe, item)
	}
	sort.Slice(universe, func(i, j int) bool { return universe[i] < universe[j] })

	m := &Matrix{
		Universe: universe,
		Rows:     make([][]bool, len(normalized)),
		index:    make(map[domain.Item]int, len(universe)),
		columns:  make([]bitset, len(universe)),
	}
	for i, item := range universe {
		m.index[item] = i
		m.columns[i] = newBitset(len(normalized))
	}
	for t, tx := range normalized {
		row := make([]bool, len(universe))
		for _, item := range tx {
			col := m.index[item]
			row[col] = true
			m.columns[col].set(t)
		}
		m.Rows[t] = row
	}
	return m, nil
}

// NumTransactions returns the number of encoded rows.
func (m *Matrix) NumTransactions() int {
	return len(m.Rows)
}

// Column returns the column index of item.
func (m *Matrix) Column(item domain.Item) (int, bool) {
	col, ok := m.index[item]
	return col, ok
}

// count returns how many rows have every column in cols set.
func (m *Matrix) count(cols []int) int {
	if len(cols) == 0 {
		return 0
	}
	if len(cols) == 1 {
		return m.columns[cols[0]].popcount()
	}
	first := m.columns[cols[0]]
	total := 0
	for w := range first {
		word := first[w]
		for _, c := range cols[1:] {
			word &= m.columns[c][w]
			if word == 0 {
				break
			}
		}
		total += bits.OnesCount64(word)
	}
	return total
}

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) popcount() int {
	total := 0
	for _, w := range b {
		total += bits.OnesCount64(w)
	}
	return total
}
