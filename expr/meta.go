package expr

import (
	"fmt"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/paulbellamy/ratecounter"
	"go.uber.org/zap"
)

const (
	MetaTextScore   = "textScore"
	MetaSearchScore = "searchScore"
	MetaRandVal     = "randVal"
	MetaSortKey     = "sortKey"
)

var metaKeywords = []string{
	MetaTextScore,
	MetaSearchScore,
	"searchHighlights",
	"searchScoreDetails",
	MetaRandVal,
	MetaSortKey,
	"indexKey",
	"recordId",
	"geoNearDistance",
	"geoNearPoint",
}

// MetaWarningsPerSecond bounds how often evaluation of $meta against a
// document lacking the metadata is logged.
const MetaWarningsPerSecond = 10

var metaWarnings = ratecounter.NewRateCounter(time.Second)

func parseMeta(p *parser, arg docpipe.Value, _ int) ([]int32, any, error) {
	if arg.Kind() != docpipe.KindString {
		return nil, nil, parseErrorf(17307, "$meta only supports string arguments")
	}
	key := arg.Str()
	if indexOf(metaKeywords, key) < 0 {
		return nil, nil, parseErrorf(17308, "Unsupported argument to $meta: %s", key)
	}
	if !p.deps.ReadsMeta(key) {
		p.deps.Meta = append(p.deps.Meta, key)
	}
	// The root document is the only operand; it does not count as a
	// document dependency since only its metadata is read.
	root := p.add(node{op: opVar, name: "ROOT"})
	return []int32{root}, key, nil
}

// evalMeta returns the metadata value or missing, warning (at a bounded
// rate) when the metadata is unavailable.
func evalMeta(ectx *Context, n *node, args []docpipe.Value) (docpipe.Value, error) {
	key := n.data.(string)
	doc := args[0].Document()
	if doc != nil {
		if v, ok := doc.Meta(key); ok {
			return v, nil
		}
	}
	if metaWarnings.Rate() < MetaWarningsPerSecond {
		metaWarnings.Incr(1)
		msg := fmt.Sprintf("$meta: %q metadata is not available on this document", key)
		if ectx.Logger != nil {
			ectx.Logger.Warn("metadata unavailable", zap.String("key", key))
		}
		ectx.warn(msg)
	}
	return docpipe.Missing, nil
}
