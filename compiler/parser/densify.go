package parser

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
)

// DensifyUnits are the supported $densify date units.
var DensifyUnits = []string{"millisecond", "second", "minute", "hour", "day", "week"}

func parseDensify(_ *parser, name string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, typeErrorf("the %s stage specification must be an object, found %s", name, arg.TypeName())
	}
	d := &dag.Densify{Kind: "Densify"}
	var rng docpipe.Value
	for _, f := range arg.Document().Fields() {
		switch f.Name {
		case "field":
			p, err := pathField(name, f.Name, f.Value)
			if err != nil {
				return nil, err
			}
			d.Field = p
		case "partitionByFields":
			if !f.Value.IsArray() {
				return nil, typeErrorf("BSON field '%s.partitionByFields' is the wrong type '%s', expected type 'array'", name, f.Value.TypeName())
			}
			for _, elem := range f.Value.Array() {
				p, err := pathField(name, f.Name, elem)
				if err != nil {
					return nil, err
				}
				if d.PartitionBy.Has(p) {
					return nil, errorf(8993000, "Cannot specify the same field %s in partitionByFields twice", p)
				}
				d.PartitionBy = append(d.PartitionBy, p)
			}
		case "range":
			if !f.Value.IsDocument() {
				return nil, typeErrorf("BSON field '%s.range' is the wrong type '%s', expected type 'object'", name, f.Value.TypeName())
			}
			rng = f.Value
		default:
			return nil, unknownArgument(name, f.Name)
		}
	}
	if d.Field == nil {
		return nil, missingArgument(name, "field")
	}
	if d.PartitionBy.Overlaps(d.Field) {
		return nil, errorf(6835100, "the field to densify cannot also be a partition field")
	}
	if rng.IsMissing() {
		return nil, missingArgument(name, "range")
	}
	if err := parseDensifyRange(name, d, rng.Document()); err != nil {
		return nil, err
	}
	return d, nil
}

func parseDensifyRange(name string, d *dag.Densify, rng *docpipe.Document) error {
	var bounds docpipe.Value
	for _, f := range rng.Fields() {
		switch f.Name {
		case "step":
			d.Step = f.Value
		case "unit":
			s, err := stringField(name+".range", f.Name, f.Value)
			if err != nil {
				return err
			}
			if !contains(DensifyUnits, s) {
				return badEnum(name+".range", f.Name, s)
			}
			d.Unit = s
		case "bounds":
			bounds = f.Value
		default:
			return unknownArgument(name+".range", f.Name)
		}
	}
	if d.Step.IsMissing() {
		return missingArgument(name+".range", "step")
	}
	if bounds.IsMissing() {
		return missingArgument(name+".range", "bounds")
	}
	f, ok := d.Step.AsFloat64()
	if !ok || !(f > 0) {
		return errorf(5733401, "the step parameter in a range statement must be a strictly positive numeric value")
	}
	if d.Unit != "" {
		if _, ok := d.Step.AsInt64(); !ok {
			return errorf(6586400, "the step parameter in a range statement must be a whole number when densifying a date range")
		}
	}
	switch bounds.Kind() {
	case docpipe.KindString:
		switch s := bounds.Str(); s {
		case "full", "partition":
			d.Bounds = s
		default:
			return errorf(5946802, "bounds must be 'full', 'partition', or an array of two values, found '%s'", s)
		}
	case docpipe.KindArray:
		b := bounds.Array()
		if len(b) != 2 {
			return errorf(5733403, "a bounding array in a range statement must have exactly two elements")
		}
		lo, hi := b[0], b[1]
		if d.Unit != "" {
			if lo.Kind() != docpipe.KindDate || hi.Kind() != docpipe.KindDate {
				return errorf(5733405, "a bounding array must contain dates if 'unit' is specified")
			}
		} else if !lo.IsNumber() || !hi.IsNumber() {
			return errorf(5733406, "a bounding array must contain numeric values if 'unit' is not specified")
		}
		if docpipe.Compare(lo, hi) > 0 {
			return errorf(5733402, "the bounds in a range statement must be the lower bound followed by the upper bound")
		}
		d.Lo, d.Hi = lo, hi
	default:
		return errorf(5946802, "bounds must be 'full', 'partition', or an array of two values")
	}
	return nil
}

