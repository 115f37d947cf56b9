package store

import (
	"context"
	"testing"
	"time"
)

// fakeKV simulates caller-held state (cookies or equivalent).
type fakeKV struct {
	values map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{values: map[string]string{}} }

func (f *fakeKV) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}
func (f *fakeKV) Set(key, value string, _ time.Duration) { f.values[key] = value }
func (f *fakeKV) Delete(key string)                      { delete(f.values, key) }

func TestClientRoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := NewClient(kv, "ab_")
	ctx := context.Background()
	now := time.Now()

	a := Assignment{ExperimentID: "e1", SubjectID: "s1", VariantID: "treatment", AssignedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := c.Set(ctx, a); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := kv.values["ab_e1.s1"]; !ok {
		t.Fatalf("expected prefixed key, have %v", kv.values)
	}
	got, ok, err := c.Get(ctx, "e1", "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.VariantID != "treatment" {
		t.Fatalf("variant: %q", got.VariantID)
	}

	if err := c.Clear(ctx, "e1", "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "e1", "s1"); ok {
		t.Fatalf("expected absent after clear")
	}
}

func TestClientSeparatorBearingIDs(t *testing.T) {
	kv := newFakeKV()
	c := NewClient(kv, "ab_")
	ctx := context.Background()
	_ = c.Set(ctx, Assignment{ExperimentID: "a", SubjectID: "b.c", VariantID: "x"})
	_ = c.Set(ctx, Assignment{ExperimentID: "a.b", SubjectID: "c", VariantID: "y"})

	if len(kv.values) != 2 {
		t.Fatalf("keys collided: %v", kv.values)
	}
	if a, _, _ := c.Get(ctx, "a", "b.c"); a.VariantID != "x" {
		t.Fatalf("record for (a, b.c): %+v", a)
	}
	if a, _, _ := c.Get(ctx, "a.b", "c"); a.VariantID != "y" {
		t.Fatalf("record for (a.b, c): %+v", a)
	}
}

func TestClientDefaultPrefix(t *testing.T) {
	kv := newFakeKV()
	c := NewClient(kv, "")
	_ = c.Set(context.Background(), Assignment{ExperimentID: "e1", SubjectID: "s1", VariantID: "v"})
	if _, ok := kv.values["vary_e1.s1"]; !ok {
		t.Fatalf("expected default prefix, have %v", kv.values)
	}
}

func TestClientExpiry(t *testing.T) {
	kv := newFakeKV()
	c := NewClient(kv, "ab_")
	ctx := context.Background()
	base := time.Now()
	c.now = func() time.Time { return base }

	_ = c.Set(ctx, Assignment{ExperimentID: "e1", SubjectID: "s1", VariantID: "v", ExpiresAt: base.Add(time.Minute)})
	c.now = func() time.Time { return base.Add(time.Hour) }
	if _, ok, _ := c.Get(ctx, "e1", "s1"); ok {
		t.Fatalf("expired client entry must behave as absent")
	}
	if _, ok := kv.values["ab_e1.s1"]; ok {
		t.Fatalf("expired entry should be deleted from KV")
	}
}

func TestClientCorruptValue(t *testing.T) {
	kv := newFakeKV()
	kv.values["ab_e1.s1"] = "{not-json"
	c := NewClient(kv, "ab_")
	if _, ok, err := c.Get(context.Background(), "e1", "s1"); ok || err != nil {
		t.Fatalf("corrupt value must read as absent: ok=%v err=%v", ok, err)
	}
}
