package cache

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Bucket is one of the three semantic cache partitions.
type Bucket string

const (
	BucketData     Bucket = "data"
	BucketChart    Bucket = "chart"
	BucketAnalysis Bucket = "analysis"
)

// buckets in sweep order.
var buckets = []Bucket{BucketData, BucketChart, BucketAnalysis}

// KV is one named component of a cache key.
type KV struct {
	K string
	V string
}

// KeyFor derives the 16-hex-character cache key for a bucket and an option
// set. Pairs are sorted by name so the key is independent of argument order;
// series values must already be reduced to their fingerprint.
func KeyFor(bucket Bucket, pairs ...KV) string {
	sorted := make([]KV, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].K < sorted[j].K })

	parts := make([]string, 0, len(sorted)+1)
	parts = append(parts, string(bucket))
	for _, kv := range sorted {
		parts = append(parts, kv.K+":"+kv.V)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])[:16]
}

// DataKey keys the raw OHLCV bucket by symbol and interval.
func DataKey(symbol, interval string) string {
	return KeyFor(BucketData, KV{"symbol", symbol}, KV{"interval", interval})
}

// ChartKey keys rendered chart bytes by symbol, interval and the data
// fingerprint, so identical datasets reuse one render.
func ChartKey(symbol, interval, dataHash string) string {
	return KeyFor(BucketChart,
		KV{"symbol", symbol}, KV{"interval", interval}, KV{"data_hash", dataHash})
}

// AnalysisKey keys analysis text by symbol and data fingerprint. Interval is
// deliberately absent: the fingerprint already pins the dataset.
func AnalysisKey(symbol, dataHash string) string {
	return KeyFor(BucketAnalysis, KV{"symbol", symbol}, KV{"data_hash", dataHash})
}
