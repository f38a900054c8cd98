// Package idempotency builds deterministic keys for payment-processor calls.
// Equal payloads, regardless of map insertion order, always produce equal
// keys, so the processor treats retried calls as no-ops.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxKeyLength is the processor-documented ceiling for idempotency keys.
const MaxKeyLength = 255

const circularSentinel = "[circular]"

// KeyInput describes the parts of an idempotency key.
type KeyInput struct {
	Prefix   string
	ActorID  string
	TenantID string
	Payload  any
	Salt     string
}

// Builder derives idempotency keys from canonicalised payloads.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder constructs a Builder. A nil logger is replaced with a no-op.
func NewBuilder(logger *zap.Logger) Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Builder{logger: logger}
}

// Key canonicalises the payload, hashes it, and assembles
// prefix:actor:tenant:digest[:salt], truncated to MaxKeyLength.
func (b Builder) Key(in KeyInput) string {
	digest := Digest(in.Payload)

	parts := []string{
		strings.TrimSpace(in.Prefix),
		strings.TrimSpace(in.ActorID),
		strings.TrimSpace(in.TenantID),
		digest,
	}
	if salt := strings.TrimSpace(in.Salt); salt != "" {
		parts = append(parts, salt)
	}

	key := strings.Join(parts, ":")
	if len(key) > MaxKeyLength {
		truncated := key[:MaxKeyLength]
		b.logger.Warn("idempotency key truncated",
			zap.String("prefix", in.Prefix),
			zap.Int("length", len(key)),
			zap.Int("limit", MaxKeyLength),
		)
		return truncated
	}
	return key
}

// Digest returns the hex sha256 of the canonical payload serialisation.
func Digest(payload any) string {
	canonical := canonicalize(reflect.ValueOf(payload), map[uintptr]bool{})
	data, err := json.Marshal(canonical)
	if err != nil {
		// Canonicalisation strips everything json cannot encode, so this is
		// unreachable in practice; degrade to the type name rather than panic.
		data = []byte(fmt.Sprintf("%T", payload))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type canonicalKV struct {
	K string `json:"k"`
	V any    `json:"v"`
}

var timeType = reflect.TypeOf(time.Time{})

func canonicalize(v reflect.Value, seen map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}

	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return circularSentinel
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return canonicalize(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return canonicalize(v.Elem(), seen)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return circularSentinel
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		pairs := make([]canonicalKV, 0, v.Len())
		for _, key := range v.MapKeys() {
			pairs = append(pairs, canonicalKV{
				K: formatKey(key),
				V: canonicalize(v.MapIndex(key), seen),
			})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].K < pairs[j].K })
		return pairs
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return circularSentinel
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return canonicalizeSequence(v, seen)
	case reflect.Array:
		return canonicalizeSequence(v, seen)
	case reflect.Struct:
		t := v.Type()
		pairs := make([]canonicalKV, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			name := field.Name
			if tag := field.Tag.Get("json"); tag != "" {
				parts := strings.Split(tag, ",")
				if parts[0] == "-" {
					continue
				}
				if parts[0] != "" {
					name = parts[0]
				}
			}
			pairs = append(pairs, canonicalKV{K: name, V: canonicalize(v.Field(i), seen)})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].K < pairs[j].K })
		return pairs
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("<%s>", v.Type().String())
	}
}

func canonicalizeSequence(v reflect.Value, seen map[uintptr]bool) any {
	length := v.Len()
	result := make([]any, length)
	for i := 0; i < length; i++ {
		result[i] = canonicalize(v.Index(i), seen)
	}
	return result
}

func formatKey(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "<nil>"
		}
		return formatKey(v.Elem())
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fmt.Sprintf("%d", v.Uint())
	case reflect.Bool:
		return fmt.Sprintf("%t", v.Bool())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", v.Float())
	default:
		if v.CanInterface() {
			return fmt.Sprintf("%#v", v.Interface())
		}
		return v.Type().String()
	}
}
