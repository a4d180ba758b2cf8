package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/brimdata/docpipe"
)

var dateFromStringArgs = []string{"dateString", "format", "timezone", "onError", "onNull"}

const (
	dsDateString = iota
	dsFormat
	dsTimezone
	dsOnError
	dsOnNull
)

// dateOpts maps each named argument to its operand position, or -1.
type dateOpts [5]int

func parseDateFromString(p *parser, arg docpipe.Value, depth int) ([]int32, any, error) {
	if !arg.IsDocument() {
		return nil, nil, parseErrorf(40540, "$dateFromString only supports an object as an argument, found: %s", arg.TypeName())
	}
	var opts dateOpts
	for k := range opts {
		opts[k] = -1
	}
	var ids []int32
	for _, f := range arg.Document().Fields() {
		k := indexOf(dateFromStringArgs, f.Name)
		if k < 0 {
			return nil, nil, parseErrorf(40541, "Unrecognized argument to $dateFromString: %s", f.Name)
		}
		id, err := p.parse(f.Value, depth+1)
		if err != nil {
			return nil, nil, err
		}
		opts[k] = len(ids)
		ids = append(ids, id)
	}
	if opts[dsDateString] < 0 {
		return nil, nil, parseErrorf(40542, "Missing 'dateString' parameter to $dateFromString")
	}
	return ids, opts, nil
}

func evalDateFromString(_ *Context, n *node, args []docpipe.Value) (docpipe.Value, error) {
	opts := n.data.(dateOpts)
	arg := func(k int) (docpipe.Value, bool) {
		if opts[k] < 0 {
			return docpipe.Missing, false
		}
		return args[opts[k]], true
	}
	onError := func(err error) (docpipe.Value, error) {
		if v, ok := arg(dsOnError); ok {
			return v, nil
		}
		return docpipe.Missing, err
	}
	ds, _ := arg(dsDateString)
	if ds.IsNullish() {
		if v, ok := arg(dsOnNull); ok {
			return v, nil
		}
		return docpipe.Null, nil
	}
	loc := time.UTC
	if tz, ok := arg(dsTimezone); ok {
		if tz.IsNullish() {
			return docpipe.Null, nil
		}
		var err error
		if loc, err = parseTimezone(tz); err != nil {
			return docpipe.Missing, err
		}
	}
	var layout string
	if format, ok := arg(dsFormat); ok {
		if format.IsNullish() {
			return docpipe.Null, nil
		}
		if format.Kind() != docpipe.KindString {
			return docpipe.Missing, typeErrorf(40684, "$dateFromString requires that 'format' be a string, found: %s", format.TypeName())
		}
		var err error
		if layout, err = goLayout(format.Str()); err != nil {
			return docpipe.Missing, err
		}
	}
	if ds.Kind() != docpipe.KindString {
		return onError(errorf(241, "$dateFromString requires that 'dateString' be a string, found: %s with value %s", ds.TypeName(), ds))
	}
	var t time.Time
	var err error
	if layout != "" {
		t, err = time.ParseInLocation(layout, ds.Str(), loc)
	} else {
		t, err = dateparse.ParseIn(ds.Str(), loc)
	}
	if err != nil {
		return onError(errorf(241, "Error parsing date string '%s'", ds.Str()))
	}
	return docpipe.NewTime(t), nil
}

func parseTimezone(tz docpipe.Value) (*time.Location, error) {
	if tz.Kind() != docpipe.KindString {
		return nil, typeErrorf(40517, "timezone must evaluate to a string, found %s", tz.TypeName())
	}
	s := tz.Str()
	if s != "" && (s[0] == '+' || s[0] == '-') {
		digits := strings.ReplaceAll(s[1:], ":", "")
		if len(digits) == 2 {
			digits += "00"
		}
		if len(digits) == 4 {
			h, herr := strconv.Atoi(digits[:2])
			m, merr := strconv.Atoi(digits[2:])
			if herr == nil && merr == nil {
				offset := h*3600 + m*60
				if s[0] == '-' {
					offset = -offset
				}
				return time.FixedZone(s, offset), nil
			}
		}
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, errorf(40485, "unrecognized time zone identifier: \"%s\"", s)
	}
	return loc, nil
}

// goLayout translates a strftime-style format into a time package layout.
func goLayout(format string) (string, error) {
	var b strings.Builder
	for k := 0; k < len(format); k++ {
		c := format[k]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if k++; k == len(format) {
			return "", errorf(18535, "Unmatched '%%' at end of format string")
		}
		switch format[k] {
		case 'Y':
			b.WriteString("2006")
		case 'm':
			b.WriteString("01")
		case 'd':
			b.WriteString("02")
		case 'H':
			b.WriteString("15")
		case 'M':
			b.WriteString("04")
		case 'S':
			b.WriteString("05")
		case 'L':
			b.WriteString("000")
		case 'j':
			b.WriteString("002")
		case 'b':
			b.WriteString("Jan")
		case 'z':
			b.WriteString("-0700")
		case '%':
			b.WriteByte('%')
		default:
			return "", errorf(18536, "Invalid format character '%s' in format string", fmt.Sprintf("%%%c", format[k]))
		}
	}
	return b.String(), nil
}
