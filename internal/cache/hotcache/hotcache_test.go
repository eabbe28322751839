package hotcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/baroni200/overpass-landmarks/internal/cache/redisstore"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

func newTestCache(t *testing.T, maxEntries int) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := redisstore.NewFromUniversal(rdb)
	return New(client, time.Minute, maxEntries, nil)
}

func TestPutGetLandmarks(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()
	key := model.CanonicalKey{Lat: 51.5074, Lng: -0.1278, Radius: 500}
	want := []model.LandmarkProjection{{Name: "Big Ben", OSMType: model.OSMWay, OSMID: 1}}

	c.PutLandmarks(ctx, key, want)
	got, ok := c.GetLandmarks(ctx, key)
	if !ok {
		t.Fatalf("GetLandmarks miss after Put")
	}
	if len(got) != 1 || got[0].Name != "Big Ben" {
		t.Fatalf("GetLandmarks = %+v; want %+v", got, want)
	}
}

func TestGetLandmarksMiss(t *testing.T) {
	c := newTestCache(t, 10)
	_, ok := c.GetLandmarks(context.Background(), model.CanonicalKey{Lat: 1, Lng: 1, Radius: 100})
	if ok {
		t.Fatalf("GetLandmarks ok = true; want false for unseen key")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := newTestCache(t, 2)
	ctx := context.Background()
	keys := []model.CanonicalKey{
		{Lat: 0, Lng: 0, Radius: 100},
		{Lat: 1, Lng: 1, Radius: 100},
		{Lat: 2, Lng: 2, Radius: 100},
	}
	for _, k := range keys {
		c.PutLandmarks(ctx, k, []model.LandmarkProjection{{Name: k.String()}})
	}

	if _, ok := c.GetLandmarks(ctx, keys[0]); ok {
		t.Fatalf("oldest key should have been evicted once capacity exceeded")
	}
	if _, ok := c.GetLandmarks(ctx, keys[2]); !ok {
		t.Fatalf("most recent key should still be present")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()
	key := model.CanonicalKey{Lat: 10, Lng: 20, Radius: 500}
	want := model.RequestRecord{ID: uuid.New(), Status: model.StatusPending, KeyLat: 10, KeyLng: 20, Radius: 500}

	c.PutRequest(ctx, key, want)
	got, ok := c.GetRequest(ctx, key)
	if !ok || got.ID != want.ID || got.Status != model.StatusPending {
		t.Fatalf("GetRequest = %+v, %v; want %+v, true", got, ok, want)
	}
}

func TestInvalidateRequest(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()
	key := model.CanonicalKey{Lat: 5, Lng: 5, Radius: 500}
	c.PutRequest(ctx, key, model.RequestRecord{ID: uuid.New(), Status: model.StatusFound})

	c.InvalidateRequest(ctx, key)
	if _, ok := c.GetRequest(ctx, key); ok {
		t.Fatalf("GetRequest ok = true after InvalidateRequest")
	}
}
