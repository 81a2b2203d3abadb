package reader

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	lodeapi "github.com/justapithecus/lode/lode"

	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

func legacyArchive(t *testing.T) *pca.Legacy {
	t.Helper()
	a, err := pca.NewLegacy(pca.Components{
		Comp:   pca.Tensor{Shape: []int{2, 3}, Data: []float64{1, 0, 0, 0, 1, 0}},
		StdDev: []float64{3, 4},
		Layer:  "conv2d_0",
	})
	if err != nil {
		t.Fatalf("NewLegacy: %v", err)
	}
	return a
}

func latentArchive(t *testing.T) *pca.Latent {
	t.Helper()
	zc := make([]float64, 2*types.ZSize)
	zc[0] = 2
	zc[types.ZSize+1] = 1
	zm := make([]float64, types.ZSize)
	zm[0] = 3
	zm[1] = 4
	a, err := pca.NewLatent(
		pca.Components{Comp: pca.Tensor{Shape: []int{2, 1}, Data: []float64{1, 1}}, StdDev: []float64{1, 1}, Layer: "z"},
		pca.LatentVersion,
		pca.Tensor{Shape: []int{2, types.ZSize}, Data: zc},
		pca.Tensor{Shape: []int{types.ZSize}, Data: zm},
	)
	if err != nil {
		t.Fatalf("NewLatent: %v", err)
	}
	return a
}

func TestSummarizeArchive_Legacy(t *testing.T) {
	s := SummarizeArchive("comps.msgpack", legacyArchive(t))

	if s.Scheme != SchemeLegacy || s.Version != 1 || s.Components != 2 || s.Layer != "conv2d_0" {
		t.Errorf("summary = %+v", s)
	}
	if s.TotalVariance != 25 {
		t.Errorf("TotalVariance = %v, want 25", s.TotalVariance)
	}
	if math.Abs(s.Rows[0].Share-0.36) > 1e-12 || math.Abs(s.Rows[1].Share-0.64) > 1e-12 {
		t.Errorf("shares = %v, %v", s.Rows[0].Share, s.Rows[1].Share)
	}
	if s.ZMeanNorm != nil || s.Rows[0].DirectionNorm != nil {
		t.Error("legacy archive should not report latent norms")
	}
	if len(s.CompShape) != 2 || s.CompShape[0] != 2 || s.CompShape[1] != 3 {
		t.Errorf("CompShape = %v", s.CompShape)
	}
}

func TestSummarizeArchive_Latent(t *testing.T) {
	s := SummarizeArchive("s3://bucket/comps.msgpack", latentArchive(t))

	if s.Scheme != SchemeLatent || s.Version != pca.LatentVersion {
		t.Errorf("Scheme = %q, Version = %d", s.Scheme, s.Version)
	}
	if s.ZMeanNorm == nil || *s.ZMeanNorm != 5 {
		t.Errorf("ZMeanNorm = %v, want 5", s.ZMeanNorm)
	}
	if d := s.Rows[0].DirectionNorm; d == nil || *d != 2 {
		t.Errorf("row 0 DirectionNorm = %v, want 2", d)
	}
	if d := s.Rows[1].DirectionNorm; d == nil || *d != 1 {
		t.Errorf("row 1 DirectionNorm = %v, want 1", d)
	}
}

func TestSummarizeNotes(t *testing.T) {
	notes := []NoteItem{
		{Seq: 0, Pitch: 60, Status: "ok", SizeBytes: 172, Samples: 16000, SampleRate: 16000},
		{Seq: 1, Pitch: 60, Status: "ok", SizeBytes: 172, Samples: 8000, SampleRate: 16000},
		{Seq: 2, Pitch: 127, Status: "pitch_unsupported"},
		{Seq: 3, Pitch: 64, Status: "failed"},
	}
	s := SummarizeNotes("s-1", "nsynth", notes)

	want := NoteStats{
		Session: "s-1", Checkpoint: "nsynth", Total: 4, OK: 2, PitchUnsupported: 1,
		Failed: 1, Pitches: 3, Bytes: 344, AudioSeconds: 1.5,
	}
	if *s != want {
		t.Errorf("SummarizeNotes = %+v, want %+v", *s, want)
	}
}

type stubLoader struct {
	archives map[string]pca.Archive
}

func (l stubLoader) Load(_ context.Context, path string) (pca.Archive, error) {
	a, ok := l.archives[path]
	if !ok {
		return nil, errors.New("no such archive")
	}
	return a, nil
}

func TestLodeReader_InspectArchive(t *testing.T) {
	r := NewLodeReader(stubLoader{archives: map[string]pca.Archive{"a.msgpack": legacyArchive(t)}}, nil)

	s, err := r.InspectArchive(t.Context(), "a.msgpack")
	if err != nil {
		t.Fatalf("InspectArchive: %v", err)
	}
	if s.Path != "a.msgpack" || s.Components != 2 {
		t.Errorf("summary = %+v", s)
	}
	if _, err := r.InspectArchive(t.Context(), "missing.msgpack"); err == nil {
		t.Error("expected error for missing archive")
	}
}

func TestLodeReader_NotesFromCapture(t *testing.T) {
	store := lodeapi.NewMemory()
	factory := func() (lodeapi.Store, error) { return store, nil }

	client, err := lode.NewLodeClientWithFactory(lode.Config{
		Dataset:    lode.DefaultDataset,
		Session:    "s-1",
		Day:        "2026-10-19",
		Checkpoint: "nsynth",
	}, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory: %v", err)
	}
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := client.WriteNotes(t.Context(), []lode.Note{
		{Seq: 1, Pitch: 127, Status: "pitch_unsupported", Ts: ts},
		{Seq: 0, Pitch: 60, Status: "ok", File: "n0000-p60.wav", SizeBytes: 172, Samples: 64, SampleRate: 16000, ZNorm: 16, Ts: ts},
	}); err != nil {
		t.Fatalf("WriteNotes: %v", err)
	}

	ds, err := lode.NewReadDataset(lode.DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}
	r := NewLodeReader(nil, ds)

	items, err := r.ListNotes(t.Context(), "s-1")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(items) != 2 || items[0].Seq != 0 || items[0].File != "n0000-p60.wav" || items[1].Status != "pitch_unsupported" {
		t.Errorf("ListNotes = %+v", items)
	}

	stats, err := r.StatsNotes(t.Context(), "s-1")
	if err != nil {
		t.Fatalf("StatsNotes: %v", err)
	}
	if stats.Checkpoint != "nsynth" || stats.Total != 2 || stats.OK != 1 || stats.PitchUnsupported != 1 {
		t.Errorf("StatsNotes = %+v", stats)
	}

	if _, err := r.ListNotes(t.Context(), "s-2"); !errors.Is(err, lode.ErrNoNotesFound) {
		t.Errorf("ListNotes(unknown session) = %v, want ErrNoNotesFound", err)
	}
}

func TestLodeReader_Unconfigured(t *testing.T) {
	r := NewLodeReader(nil, nil)
	if _, err := r.InspectArchive(t.Context(), "a"); err == nil {
		t.Error("expected error without archive loader")
	}
	if _, err := r.ListNotes(t.Context(), "s-1"); err == nil {
		t.Error("expected error without dataset")
	}
}

func TestStubReader(t *testing.T) {
	r := NewStubReader()
	r.Notes["s-1"] = []NoteItem{{Seq: 0, Pitch: 60, Status: "ok"}}

	stats, err := r.StatsNotes(t.Context(), "s-1")
	if err != nil {
		t.Fatalf("StatsNotes: %v", err)
	}
	if stats.Total != 1 || stats.OK != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := r.InspectArchive(t.Context(), "x"); err == nil {
		t.Error("expected error for unknown archive")
	}
}
