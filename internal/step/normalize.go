package step

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/pkg/records"
)

// Normalize cleans string fields: non-breaking spaces become regular spaces
// and surrounding whitespace is trimmed. With fold_diacritics it also strips
// combining marks ("Dvořák" becomes "Dvorak"). The source dataset is left
// untouched; the cleaned rows materialize under the target name.
type Normalize struct{}

func (n *Normalize) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := reg.Resolve(def.Params.String("source", ""))
	if err != nil {
		return 0, err
	}
	fold := def.Params.Bool("fold_diacritics", false)

	out := make([]records.Record, 0, len(src.Rows))
	for _, rec := range src.Rows {
		clean := rec.Clone()
		for k, v := range clean {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
			if fold {
				s = foldDiacritics(s)
			}
			clean[k] = s
		}
		out = append(out, clean)
	}

	return materialize(reg, def, src.Schema.Clone(), out)
}

// foldDiacritics decomposes, removes the combining marks, and recomposes.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
