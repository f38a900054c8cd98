package idempotency

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestKeyStableAcrossInsertionOrder(t *testing.T) {
	b := NewBuilder(nil)

	first := map[string]any{}
	first["orderId"] = "ord_1"
	first["amountCents"] = int64(1200)
	first["nested"] = map[string]any{"a": 1, "b": 2}

	second := map[string]any{}
	second["nested"] = map[string]any{"b": 2, "a": 1}
	second["amountCents"] = int64(1200)
	second["orderId"] = "ord_1"

	k1 := b.Key(KeyInput{Prefix: "capture", ActorID: "act_1", TenantID: "ten_1", Payload: first})
	k2 := b.Key(KeyInput{Prefix: "capture", ActorID: "act_1", TenantID: "ten_1", Payload: second})
	if k1 != k2 {
		t.Fatalf("keys differ for equal payloads:\n%s\n%s", k1, k2)
	}
	if !strings.HasPrefix(k1, "capture:act_1:ten_1:") {
		t.Fatalf("unexpected key shape %s", k1)
	}
}

func TestKeyDiffersForDifferentPayloads(t *testing.T) {
	b := NewBuilder(nil)
	base := KeyInput{Prefix: "capture", ActorID: "act_1", TenantID: "ten_1"}

	in1 := base
	in1.Payload = map[string]any{"amountCents": 100}
	in2 := base
	in2.Payload = map[string]any{"amountCents": 200}

	if b.Key(in1) == b.Key(in2) {
		t.Fatal("different payloads should yield different keys")
	}
}

func TestKeySaltAndTruncation(t *testing.T) {
	b := NewBuilder(nil)

	plain := b.Key(KeyInput{Prefix: "p", ActorID: "a", TenantID: "t", Payload: 1})
	salted := b.Key(KeyInput{Prefix: "p", ActorID: "a", TenantID: "t", Payload: 1, Salt: "retry-2"})
	if plain == salted {
		t.Fatal("salt should change the key")
	}
	if !strings.HasSuffix(salted, ":retry-2") {
		t.Fatalf("salt should be the final segment, got %s", salted)
	}

	long := b.Key(KeyInput{Prefix: strings.Repeat("x", 300), ActorID: "a", TenantID: "t", Payload: 1})
	if len(long) != MaxKeyLength {
		t.Fatalf("expected key truncated to %d chars, got %d", MaxKeyLength, len(long))
	}
}

func TestDigestHandlesAwkwardValues(t *testing.T) {
	type loop struct {
		Name string `json:"name"`
		Self *loop  `json:"self"`
	}
	cyclic := &loop{Name: "a"}
	cyclic.Self = cyclic

	// Must not panic or recurse forever.
	d1 := Digest(cyclic)
	d2 := Digest(cyclic)
	if d1 != d2 {
		t.Fatal("cyclic payload digest should be deterministic")
	}

	if Digest(math.NaN()) != Digest(math.Inf(1)) {
		t.Fatal("NaN and Inf both canonicalise to null")
	}

	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.FixedZone("JST", 9*3600))
	if Digest(ts) != Digest(ts.UTC()) {
		t.Fatal("times should canonicalise to UTC")
	}
}

func TestDigestStructFieldOrderIrrelevant(t *testing.T) {
	type a struct {
		X int64 `json:"x"`
		Y int64 `json:"y"`
	}
	type b struct {
		Y int64 `json:"y"`
		X int64 `json:"x"`
	}
	if Digest(a{X: 1, Y: 2}) != Digest(b{X: 1, Y: 2}) {
		t.Fatal("struct declaration order should not affect the digest")
	}
}
