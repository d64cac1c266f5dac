package step

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/pkg/records"
)

// Dedup collapses rows that share the same value on the configured key
// fields. The winner among duplicates is chosen by policy:
//
//   - "keep-first"   : earliest occurrence
//   - "keep-last"    : latest occurrence (default)
//   - "most-complete": the row with the most non-empty fields, ties break
//     by keep-last
//
// Rows missing any key field are not keyed; they pass through after the
// winners, in their original relative order.
type Dedup struct{}

func (d *Dedup) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := reg.Resolve(def.Params.String("source", ""))
	if err != nil {
		return 0, err
	}

	keys := def.Params.StringSlice("keys")
	policy := strings.ToLower(def.Params.String("policy", "keep-last"))
	switch policy {
	case "keep-first", "keep-last", "most-complete":
	default:
		return 0, errs.New(errs.KindConfig, "dedup %s: unknown policy %q", def.Name, policy)
	}

	type slot struct {
		rec   records.Record
		index int
		score int
	}
	winners := make(map[uint64]slot, len(src.Rows))

	for i, rec := range src.Rows {
		key, ok := rowKey(rec, keys)
		if !ok {
			continue
		}
		switch policy {
		case "keep-first":
			if _, exists := winners[key]; !exists {
				winners[key] = slot{rec: rec, index: i}
			}
		case "most-complete":
			s := slot{rec: rec, index: i, score: completeness(rec)}
			prev, exists := winners[key]
			if !exists || s.score > prev.score || (s.score == prev.score && s.index > prev.index) {
				winners[key] = s
			}
		default:
			winners[key] = slot{rec: rec, index: i}
		}
	}

	// Winners come out in the order of their winning row's position, so
	// repeated runs over the same input produce the same output.
	slots := make([]slot, 0, len(winners))
	for _, s := range winners {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(a, b int) bool { return slots[a].index < slots[b].index })

	out := make([]records.Record, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.rec)
	}
	for _, rec := range src.Rows {
		if _, ok := rowKey(rec, keys); !ok {
			out = append(out, rec)
		}
	}

	return materialize(reg, def, src.Schema.Clone(), out)
}

// rowKey hashes the key field values into a single 64-bit key. A row missing
// any key field is excluded from the dedup domain.
func rowKey(rec records.Record, keys []string) (uint64, bool) {
	var b strings.Builder
	for _, k := range keys {
		v, ok := rec[k]
		if !ok {
			return 0, false
		}
		if b.Len() > 0 {
			b.WriteByte('\x1f')
		}
		switch t := v.(type) {
		case nil:
			b.WriteByte('\x00')
		case string:
			b.WriteString(t)
		default:
			fmt.Fprint(&b, t)
		}
	}
	return xxh3.HashString(b.String()), true
}

// completeness counts non-empty fields. Nil and "" do not count.
func completeness(rec records.Record) int {
	n := 0
	for _, v := range rec {
		if records.IsEmpty(v) {
			continue
		}
		n++
	}
	return n
}
