package memo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Key computes the canonical fingerprint for a set of call arguments.
// Structurally equal arguments always produce the same key, regardless of
// map iteration order or container identity: sequences keep their order,
// map keys are sorted, and scalars pass through unchanged.
//
// Arguments must be representable as JSON; anything else (channels,
// functions, cycles) returns an error.
func Key(args ...any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, arg := range args {
		if i > 0 {
			buf.WriteByte(',')
		}
		node, err := decompose(arg)
		if err != nil {
			return "", fmt.Errorf("argument %d is not cacheable: %w", i, err)
		}
		if err := renderCanonical(&buf, node); err != nil {
			return "", fmt.Errorf("argument %d is not cacheable: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// decompose normalizes an arbitrary argument into the tree of types that
// renderCanonical understands: nil, bool, string, json.Number, []any and
// map[string]any. Typed containers and structs are passed through a JSON
// round trip so that, for example, []int{1,2} and []any{1,2} fingerprint
// identically.
func decompose(arg any) (any, error) {
	switch v := arg.(type) {
	case nil, bool, string, json.Number:
		return v, nil
	case int:
		return json.Number(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case float64:
		return json.Number(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			d, err := decompose(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			d, err := decompose(e)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	default:
		// Fallback for typed slices, maps and structs.
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, err
		}
		return decompose(decoded)
	}
}

// renderCanonical writes a deterministic JSON rendering of a decomposed
// node: object keys sorted, array order preserved.
func renderCanonical(buf *bytes.Buffer, node any) error {
	switch v := node.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(v.String())
	case string:
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case []any:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := renderCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := renderCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value of type %T", node)
	}
	return nil
}
