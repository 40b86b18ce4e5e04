package kq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// exportVersion is bumped whenever the archive layout changes.
const exportVersion = 1

type exportArchive struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Samples    []exportSample `json:"samples"`
}

type exportSample struct {
	ID        string    `json:"id"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Export writes every sample started within [start, end] to w as an
// encrypted archive. It returns the number of samples written.
func (b *HealthBridge) Export(ctx context.Context, enc Encryptor, w io.Writer, start, end time.Time) (int, error) {
	if !b.IsAvailable() {
		return 0, newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	if start.After(end) {
		return 0, malformed("start must not be after end")
	}

	start, end = clampSampleTime(start), clampSampleTime(end)

	archive := exportArchive{Version: exportVersion, ExportedAt: b.clock.Now().UTC(), Samples: []exportSample{}}
	for _, m := range AllMetrics() {
		samples, err := b.store.Query(ctx, m, start, end)
		if err != nil {
			return 0, newBridgeError(KindStoreFailure, err, "Failed to read %s", m)
		}
		for _, s := range samples {
			archive.Samples = append(archive.Samples, exportSample{
				ID:        s.ID,
				Metric:    s.Metric,
				Value:     s.Value,
				Start:     s.Start.UTC(),
				End:       s.End.UTC(),
				Source:    s.Source,
				CreatedAt: s.CreatedAt.UTC(),
			})
		}
	}

	data, err := json.Marshal(archive)
	if err != nil {
		return 0, fmt.Errorf("encoding export: %w", err)
	}
	if err := enc.Encrypt(bytes.NewReader(data), w); err != nil {
		return 0, fmt.Errorf("encrypting export: %w", err)
	}
	b.logger.Info("exported health samples", "count", len(archive.Samples))
	return len(archive.Samples), nil
}

// Import reads an archive written by Export and saves its samples. Samples
// already present are skipped by the store. It returns the archive size.
func (b *HealthBridge) Import(ctx context.Context, dec DecryptionContext, r io.Reader) (int, error) {
	if !b.IsAvailable() {
		return 0, newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}

	var plain bytes.Buffer
	if err := dec.Decrypt(r, &plain); err != nil {
		return 0, fmt.Errorf("decrypting export: %w", err)
	}

	var archive exportArchive
	if err := json.Unmarshal(plain.Bytes(), &archive); err != nil {
		return 0, newBridgeError(KindMalformedRequest, err, "Invalid export archive")
	}
	if archive.Version != exportVersion {
		return 0, malformed("Unsupported export version %d", archive.Version)
	}

	samples := make([]Sample, len(archive.Samples))
	for i, s := range archive.Samples {
		if _, ok := metricTable[s.Metric]; !ok {
			return 0, malformed("Unknown data type %q in export", s.Metric)
		}
		if !InSampleRange(s.Start) || !InSampleRange(s.End) || !InSampleRange(s.CreatedAt) {
			return 0, malformed("Sample %s has a date outside the supported range", s.ID)
		}
		samples[i] = Sample{
			ID:        s.ID,
			Metric:    s.Metric,
			Value:     s.Value,
			Start:     s.Start,
			End:       s.End,
			Source:    s.Source,
			CreatedAt: s.CreatedAt,
		}
	}
	if err := b.store.Save(ctx, samples); err != nil {
		return 0, newBridgeError(KindStoreFailure, err, "Failed to import samples")
	}
	b.logger.Info("imported health samples", "count", len(samples))
	return len(samples), nil
}
