// Package crypto provides the canonical JSON encoding, digests and ed25519 signing used for
// plan digests and execution receipts.
package crypto

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize encodes v as canonical JSON: sorted NFC keys, nulls inside objects dropped,
// numbers in their shortest form. Structs are not accepted; pass maps or use CanonicalizeJSON.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeJSON re-encodes an existing JSON document canonically.
func CanonicalizeJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return Canonicalize(v)
}

// CanonicalDigest marshals v with encoding/json, canonicalizes it and returns the prefixed digest.
func CanonicalDigest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return DigestWithPrefix(canonical), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	if n, ok := v.(json.Number); ok {
		return encodeNumber(buf, n)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return encodeString(buf, rv.String())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(buf, rv.Float())
	case reflect.Map:
		return encodeObject(buf, rv)
	case reflect.Slice, reflect.Array:
		return encodeArray(buf, rv)
	default:
		return ErrUnsupportedType
	}
}

func encodeString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	return encodeFloat(buf, f)
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFiniteNumber
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeObject(buf *bytes.Buffer, rv reflect.Value) error {
	if rv.Type().Key().Kind() != reflect.String {
		return ErrNonStringMapKey
	}

	type field struct {
		key   string
		value any
	}
	fields := make([]field, 0, rv.Len())
	seen := make(map[string]bool, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := norm.NFC.String(iter.Key().String())
		if seen[key] {
			return ErrKeyCollision
		}
		seen[key] = true
		value := iter.Value().Interface()
		if isNull(value) {
			continue
		}
		fields = append(fields, field{key: key, value: value})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, f.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeCanonical(buf, f.value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, rv reflect.Value) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		buf.WriteString("null")
		return nil
	}
	buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonical(buf, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
