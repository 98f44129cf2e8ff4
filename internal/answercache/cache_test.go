package answercache

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newValkeyCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("failed to create valkey client: %v", err)
	}
	t.Cleanup(client.Close)
	return New(client, Config{TTL: 30 * time.Minute}, discardLogger()), mr
}

func TestKeyNormalization(t *testing.T) {
	c := New(nil, Config{}, discardLogger())

	a := c.Key("  ¿Cuánto cuesta un FOTÓGRAFO?  ")
	b := c.Key("cuanto cuesta un fotografo")
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Fatalf("expected prefix %q, got %q", keyPrefix, a)
	}
	if c.Key("¿?!") != "" {
		t.Fatalf("expected empty key for punctuation-only question")
	}

	long := strings.Repeat("palabra ", 40)
	if got := c.Key(long); len([]rune(strings.TrimPrefix(got, keyPrefix))) > defaultPrefixLen {
		t.Fatalf("expected key truncated to %d runes, got %q", defaultPrefixLen, got)
	}
}

func TestMemoryLookupAndStore(t *testing.T) {
	c := New(nil, Config{}, discardLogger())
	ctx := context.Background()

	if _, ok := c.Lookup(ctx, "hola"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Store(ctx, "¿Hay plomeros en Puebla?", Entry{Answer: "Sí, hay tres.", Model: "m"})

	got, ok := c.Lookup(ctx, "hay plomeros en puebla")
	if !ok || got.Answer != "Sí, hay tres." {
		t.Fatalf("expected hit, got %+v ok=%v", got, ok)
	}

	c.Store(ctx, "vacío", Entry{Answer: "   "})
	if _, ok := c.Lookup(ctx, "vacío"); ok {
		t.Fatalf("blank answers must not be cached")
	}
}

func TestValkeyLookupStoreAndExpiry(t *testing.T) {
	c, mr := newValkeyCache(t)
	ctx := context.Background()

	c.Store(ctx, "¿Hay fotógrafos en Monterrey?", Entry{Answer: "Hay dos fotógrafos.", Model: "gemini"})

	key := c.Key("hay fotografos en monterrey")
	if !mr.Exists(key) {
		t.Fatalf("expected key %q in valkey", key)
	}
	if ttl := mr.TTL(key); ttl != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %v", ttl)
	}

	got, ok := c.Lookup(ctx, "Hay fotografos en Monterrey")
	if !ok || got.Answer != "Hay dos fotógrafos." || got.Model != "gemini" {
		t.Fatalf("unexpected entry: %+v ok=%v", got, ok)
	}

	mr.FastForward(31 * time.Minute)
	if _, ok := c.Lookup(ctx, "Hay fotografos en Monterrey"); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestValkeyCompressesLargeAnswers(t *testing.T) {
	c, mr := newValkeyCache(t)
	ctx := context.Background()
	answer := strings.Repeat("Proveedor verificado en Guadalajara. ", 100)

	c.Store(ctx, "lista larga", Entry{Answer: answer})

	raw, err := mr.Get(c.Key("lista larga"))
	if err != nil {
		t.Fatalf("expected raw value: %v", err)
	}
	if raw[0] != codecZstd {
		t.Fatalf("expected zstd marker, got %q", raw[0])
	}
	if len(raw) >= len(answer) {
		t.Fatalf("expected compressed payload, got %d bytes", len(raw))
	}

	got, ok := c.Lookup(ctx, "lista larga")
	if !ok || got.Answer != answer {
		t.Fatalf("expected round trip of large answer")
	}
}

func TestValkeyCorruptValueIsMiss(t *testing.T) {
	c, mr := newValkeyCache(t)
	if err := mr.Set(c.Key("roto"), "xgarbage"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := c.Lookup(context.Background(), "roto"); ok {
		t.Fatalf("expected miss for unknown codec")
	}
}

func TestValkeyUnavailableIsMiss(t *testing.T) {
	c, mr := newValkeyCache(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Store(ctx, "hola", Entry{Answer: "x"})
	if _, ok := c.Lookup(ctx, "hola"); ok {
		t.Fatalf("expected miss when store is down")
	}
}
