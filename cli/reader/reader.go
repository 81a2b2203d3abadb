package reader

import (
	"math"

	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

// SummarizeArchive builds the inspect view of a loaded archive.
func SummarizeArchive(path string, a pca.Archive) *ArchiveSummary {
	base := a.Base()
	s := &ArchiveSummary{
		Path:       path,
		Version:    a.Version(),
		Scheme:     SchemeLegacy,
		Layer:      base.Layer,
		Components: a.ComponentCount(),
		CompShape:  append([]int(nil), base.Comp.Shape...),
		Rows:       make([]ComponentRow, a.ComponentCount()),
	}

	for _, sd := range base.StdDev {
		s.TotalVariance += sd * sd
	}
	for i, sd := range base.StdDev {
		row := ComponentRow{Index: i, StdDev: sd}
		if s.TotalVariance > 0 {
			row.Share = sd * sd / s.TotalVariance
		}
		s.Rows[i] = row
	}

	if l, ok := a.(*pca.Latent); ok {
		s.Scheme = SchemeLatent
		norm := l.ZMean.Norm()
		s.ZMeanNorm = &norm
		for i := range s.Rows {
			d := l.Direction(i).Norm()
			s.Rows[i].DirectionNorm = &d
		}
	}
	return s
}

// SummarizeNotes aggregates note records of one session.
func SummarizeNotes(session, checkpoint string, notes []NoteItem) *NoteStats {
	stats := &NoteStats{Session: session, Checkpoint: checkpoint, Total: len(notes)}
	pitches := make(map[int32]struct{})
	for _, n := range notes {
		switch n.Status {
		case types.ItemOK.String():
			stats.OK++
		case types.ItemPitchUnsupported.String():
			stats.PitchUnsupported++
		default:
			stats.Failed++
		}
		pitches[n.Pitch] = struct{}{}
		stats.Bytes += n.SizeBytes
		if n.SampleRate > 0 {
			stats.AudioSeconds += float64(n.Samples) / float64(n.SampleRate)
		}
	}
	stats.Pitches = len(pitches)
	stats.AudioSeconds = math.Round(stats.AudioSeconds*1000) / 1000
	return stats
}
