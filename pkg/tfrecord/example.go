package tfrecord

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Feature is one feature of a tf.train.Example. Exactly one of the three
// lists should be populated.
type Feature struct {
	Bytes  [][]byte
	Floats []float32
	Ints   []int64
}

func BytesFeature(values ...[]byte) Feature {
	return Feature{Bytes: values}
}

func StringFeature(values ...string) Feature {
	b := make([][]byte, len(values))
	for i, v := range values {
		b[i] = []byte(v)
	}
	return Feature{Bytes: b}
}

func FloatFeature(values ...float32) Feature {
	return Feature{Floats: values}
}

func Int64Feature(values ...int64) Feature {
	return Feature{Ints: values}
}

// Example is a tf.train.Example: a map from feature name to feature value.
type Example map[string]Feature

// Marshal serializes the example to its protobuf wire form. Features are
// emitted in sorted key order so the output is deterministic.
func (e Example) Marshal() []byte {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		entry := marshalMapEntry(k, e[k])
		features = protowire.AppendTag(features, 1, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, features)
	return out
}

func marshalMapEntry(key string, f Feature) []byte {
	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.BytesType)
	entry = protowire.AppendString(entry, key)
	entry = protowire.AppendTag(entry, 2, protowire.BytesType)
	entry = protowire.AppendBytes(entry, marshalFeature(f))
	return entry
}

func marshalFeature(f Feature) []byte {
	var list []byte
	var field protowire.Number
	switch {
	case f.Bytes != nil:
		field = 1
		for _, b := range f.Bytes {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
	case f.Floats != nil:
		field = 2
		var packed []byte
		for _, v := range f.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		list = protowire.AppendTag(list, 1, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		field = 3
		var packed []byte
		for _, v := range f.Ints {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, 1, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	}
	var out []byte
	out = protowire.AppendTag(out, field, protowire.BytesType)
	out = protowire.AppendBytes(out, list)
	return out
}

// UnmarshalExample parses a serialized tf.train.Example. It exists so tests
// and tooling can inspect records we wrote.
func UnmarshalExample(b []byte) (Example, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	if num != 1 || typ != protowire.BytesType {
		return nil, fmt.Errorf("unexpected field %d in Example", num)
	}
	features, n2 := protowire.ConsumeBytes(b[n:])
	if n2 < 0 {
		return nil, protowire.ParseError(n2)
	}

	ex := Example{}
	for len(features) > 0 {
		_, typ, n := protowire.ConsumeTag(features)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if typ != protowire.BytesType {
			return nil, fmt.Errorf("unexpected wire type %d in Features", typ)
		}
		entry, n2 := protowire.ConsumeBytes(features[n:])
		if n2 < 0 {
			return nil, protowire.ParseError(n2)
		}
		features = features[n+n2:]
		key, feat, err := unmarshalMapEntry(entry)
		if err != nil {
			return nil, err
		}
		ex[key] = feat
	}
	return ex, nil
}

func unmarshalMapEntry(b []byte) (string, Feature, error) {
	var key string
	var feat Feature
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", feat, protowire.ParseError(n)
		}
		v, n2 := protowire.ConsumeBytes(b[n:])
		if n2 < 0 {
			return "", feat, protowire.ParseError(n2)
		}
		b = b[n+n2:]
		switch num {
		case 1:
			key = string(v)
		case 2:
			f, err := unmarshalFeature(v)
			if err != nil {
				return "", feat, err
			}
			feat = f
		}
	}
	return key, feat, nil
}

func unmarshalFeature(b []byte) (Feature, error) {
	var f Feature
	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, protowire.ParseError(n)
		}
		list, n2 := protowire.ConsumeBytes(b[n:])
		if n2 < 0 {
			return f, protowire.ParseError(n2)
		}
		b = b[n+n2:]
		switch num {
		case 1:
			f.Bytes = [][]byte{}
			for len(list) > 0 {
				_, _, tn := protowire.ConsumeTag(list)
				if tn < 0 {
					return f, protowire.ParseError(tn)
				}
				v, vn := protowire.ConsumeBytes(list[tn:])
				if vn < 0 {
					return f, protowire.ParseError(vn)
				}
				f.Bytes = append(f.Bytes, v)
				list = list[tn+vn:]
			}
		case 2:
			_, _, tn := protowire.ConsumeTag(list)
			if tn < 0 {
				return f, protowire.ParseError(tn)
			}
			packed, vn := protowire.ConsumeBytes(list[tn:])
			if vn < 0 {
				return f, protowire.ParseError(vn)
			}
			for len(packed) > 0 {
				v, fn := protowire.ConsumeFixed32(packed)
				if fn < 0 {
					return f, protowire.ParseError(fn)
				}
				f.Floats = append(f.Floats, math.Float32frombits(v))
				packed = packed[fn:]
			}
		case 3:
			_, _, tn := protowire.ConsumeTag(list)
			if tn < 0 {
				return f, protowire.ParseError(tn)
			}
			packed, vn := protowire.ConsumeBytes(list[tn:])
			if vn < 0 {
				return f, protowire.ParseError(vn)
			}
			for len(packed) > 0 {
				v, fn := protowire.ConsumeVarint(packed)
				if fn < 0 {
					return f, protowire.ParseError(fn)
				}
				f.Ints = append(f.Ints, int64(v))
				packed = packed[fn:]
			}
		}
	}
	return f, nil
}
