package score

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

// PieceFromSMF reads a standard MIDI file and converts its note
// events into a beat-based schedule. Tick offsets are divided by the
// file's resolution so one quarter note equals one beat; the file's
// own tempo map is ignored, playback tempo comes from the session.
// Hands are inferred from pitch around the split point.
func PieceFromSMF(path string) (*Piece, error) {
	data, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read smf %q: %w", path, err)
	}

	ticks, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %q: unsupported time format %v", ErrInvalidNote, path, data.TimeFormat)
	}
	resolution := float64(ticks.Resolution())

	type openNote struct {
		start    uint64
		velocity uint8
	}

	var schedule Schedule
	for _, track := range data.Tracks {
		open := make(map[uint8]openNote)
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteStart(&ch, &key, &vel):
				open[key] = openNote{start: abs, velocity: vel}
			case ev.Message.GetNoteEnd(&ch, &key):
				on, held := open[key]
				if !held {
					continue
				}
				delete(open, key)
				if abs == on.start {
					continue // zero-length note
				}
				schedule = append(schedule, NoteEvent{
					Beat:     float64(on.start) / resolution,
					Duration: float64(abs-on.start) / resolution,
					Pitch:    int(key),
					Velocity: int(on.velocity),
					Hand:     InferHand(int(key)),
				})
			}
		}
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p := &Piece{
		ID:       id,
		Name:     id,
		Schedule: schedule.Sorted(),
	}
	if err := p.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("smf %q: %w", path, err)
	}
	return p, nil
}

// LoadDir registers every .mid/.midi file under dir as a piece.
// Files that fail to parse are skipped and reported in the returned
// error list; pieces that parsed are kept either way.
func (l *InMemoryLibrary) LoadDir(dir string) (int, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, []error{fmt.Errorf("read score dir %q: %w", dir, err)}
	}

	var (
		loaded int
		errs   []error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mid", ".midi":
		default:
			continue
		}
		p, err := PieceFromSMF(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		l.Add(p)
		loaded++
	}
	return loaded, errs
}
