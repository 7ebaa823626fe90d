package texture

import (
	"context"
	"testing"
	"time"
)

func newTestTexture() *GpuTexture {
	return &GpuTexture{Width: 4, Height: 4, Format: FormatNV12, Data: make([]byte, 4*4*3/2)}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	pool := NewTexturePool(newTestTexture, 2)
	if pool.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", pool.Len())
	}

	ctx := context.Background()
	t1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx2, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx2); err == nil {
		t.Fatal("expected Acquire to block when pool is exhausted")
	}

	pool.Release(t1)
	t3, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if t3 != t1 {
		t.Fatal("expected the released texture to be reused")
	}
	pool.Release(t2)
	pool.Release(t3)
}

func TestUpdateFormatOrphansInFlightTextures(t *testing.T) {
	pool := NewTexturePool(newTestTexture, 1)
	tex, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pool.UpdateFormat(newTestTexture, 1)

	// Releasing a texture from the prior generation must not corrupt the
	// new generation's free list.
	pool.Release(tex)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	newTex, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after UpdateFormat: %v", err)
	}
	if newTex == tex {
		t.Fatal("expected a fresh texture from the new generation")
	}
}
