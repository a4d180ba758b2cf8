package agg

import (
	"errors"
	"fmt"

	"github.com/brimdata/docpipe"
)

type Avg struct {
	sum   docpipe.Value
	count int64
}

var _ Function = (*Avg)(nil)

func (a *Avg) Consume(val docpipe.Value) {
	if !val.IsNumber() {
		return
	}
	if a.count == 0 {
		a.sum = val
	} else {
		a.sum, _ = docpipe.Add(a.sum, val)
	}
	a.count++
}

func (a *Avg) Result() docpipe.Value {
	if a.count == 0 {
		return docpipe.Null
	}
	v, err := docpipe.Divide(a.sum, docpipe.NewInt64(a.count))
	if err != nil {
		return docpipe.Null
	}
	return v
}

const (
	sumName   = "sum"
	countName = "count"
)

func (a *Avg) ConsumeAsPartial(partial docpipe.Value) {
	if !partial.IsDocument() {
		panic(fmt.Errorf("avg: partial has bad type: %s", partial))
	}
	d := partial.Document()
	sum := d.Get(sumName)
	count, ok := d.Get(countName).AsInt64()
	if !ok {
		panic(errors.New("avg: partial count is missing"))
	}
	if count == 0 {
		return
	}
	if !sum.IsNumber() {
		panic(fmt.Errorf("avg: partial sum has bad type: %s", sum))
	}
	if a.count == 0 {
		a.sum = sum
	} else {
		a.sum, _ = docpipe.Add(a.sum, sum)
	}
	a.count += count
}

func (a *Avg) ResultAsPartial() docpipe.Value {
	sum := a.sum
	if a.count == 0 {
		sum = docpipe.NewInt32(0)
	}
	return docpipe.NewDocumentValue(docpipe.D(
		sumName, sum,
		countName, docpipe.NewInt64(a.count),
	))
}
