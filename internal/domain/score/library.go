package score

import (
	"context"
	"fmt"
	"sync"
)

// Library is the piece lookup collaborator.
type Library interface {
	// Get returns the piece with the given id.
	// Returns ErrPieceNotFound if the id is unknown.
	Get(ctx context.Context, id string) (*Piece, error)
	// List returns all known pieces in registration order.
	List(ctx context.Context) []*Piece
}

// Option applies a configuration option to the InMemoryLibrary.
type Option func(*InMemoryLibrary)

// WithPiece registers an extra piece at construction.
func WithPiece(p *Piece) Option {
	return func(l *InMemoryLibrary) {
		if p != nil {
			l.add(p)
		}
	}
}

// WithoutBuiltins skips the built-in demo pieces.
func WithoutBuiltins() Option {
	return func(l *InMemoryLibrary) {
		l.pieces = make(map[string]*Piece)
		l.order = nil
	}
}

// InMemoryLibrary implements Library over a static in-memory set of
// pieces, seeded with built-in demos and optionally extended from a
// directory of standard MIDI files.
type InMemoryLibrary struct {
	mu     sync.RWMutex
	pieces map[string]*Piece
	order  []string
}

// NewInMemoryLibrary creates a library holding the built-in demo
// pieces plus any pieces supplied via options.
func NewInMemoryLibrary(opts ...Option) *InMemoryLibrary {
	l := &InMemoryLibrary{pieces: make(map[string]*Piece)}
	for _, p := range builtinPieces() {
		l.add(p)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the piece with the given id.
func (l *InMemoryLibrary) Get(_ context.Context, id string) (*Piece, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pieces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPieceNotFound, id)
	}
	return p, nil
}

// List returns all known pieces in registration order.
func (l *InMemoryLibrary) List(_ context.Context) []*Piece {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Piece, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.pieces[id])
	}
	return out
}

// Add registers a piece, replacing any existing piece with the same
// id.
func (l *InMemoryLibrary) Add(p *Piece) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(p)
}

func (l *InMemoryLibrary) add(p *Piece) {
	if _, ok := l.pieces[p.ID]; !ok {
		l.order = append(l.order, p.ID)
	}
	l.pieces[p.ID] = p
}

// builtinPieces returns the demo scores shipped with the engine.
// Melodies sit in the right hand with a simple left-hand bass so
// every hands selector has notes to play.
func builtinPieces() []*Piece {
	return []*Piece{
		{
			ID:       "twinkle",
			Name:     "Twinkle Twinkle Little Star",
			Composer: "Traditional",
			Schedule: Schedule{
				{Beat: 0, Duration: 1, Pitch: 60, Velocity: 80, Hand: HandRight},
				{Beat: 0, Duration: 2, Pitch: 48, Velocity: 60, Hand: HandLeft},
				{Beat: 1, Duration: 1, Pitch: 60, Velocity: 80, Hand: HandRight},
				{Beat: 2, Duration: 1, Pitch: 67, Velocity: 80, Hand: HandRight},
				{Beat: 2, Duration: 2, Pitch: 52, Velocity: 60, Hand: HandLeft},
				{Beat: 3, Duration: 1, Pitch: 67, Velocity: 80, Hand: HandRight},
				{Beat: 4, Duration: 1, Pitch: 69, Velocity: 80, Hand: HandRight},
				{Beat: 4, Duration: 2, Pitch: 53, Velocity: 60, Hand: HandLeft},
				{Beat: 5, Duration: 1, Pitch: 69, Velocity: 80, Hand: HandRight},
				{Beat: 6, Duration: 2, Pitch: 67, Velocity: 80, Hand: HandRight},
				{Beat: 6, Duration: 2, Pitch: 48, Velocity: 60, Hand: HandLeft},
			},
		},
		{
			ID:       "ode-to-joy",
			Name:     "Ode to Joy (theme)",
			Composer: "Beethoven",
			Schedule: Schedule{
				{Beat: 0, Duration: 1, Pitch: 64, Velocity: 85, Hand: HandRight},
				{Beat: 0, Duration: 4, Pitch: 48, Velocity: 60, Hand: HandLeft},
				{Beat: 1, Duration: 1, Pitch: 64, Velocity: 85, Hand: HandRight},
				{Beat: 2, Duration: 1, Pitch: 65, Velocity: 85, Hand: HandRight},
				{Beat: 3, Duration: 1, Pitch: 67, Velocity: 85, Hand: HandRight},
				{Beat: 4, Duration: 1, Pitch: 67, Velocity: 85, Hand: HandRight},
				{Beat: 4, Duration: 4, Pitch: 43, Velocity: 60, Hand: HandLeft},
				{Beat: 5, Duration: 1, Pitch: 65, Velocity: 85, Hand: HandRight},
				{Beat: 6, Duration: 1, Pitch: 64, Velocity: 85, Hand: HandRight},
				{Beat: 7, Duration: 1, Pitch: 62, Velocity: 85, Hand: HandRight},
				{Beat: 8, Duration: 1, Pitch: 60, Velocity: 85, Hand: HandRight},
				{Beat: 8, Duration: 4, Pitch: 48, Velocity: 60, Hand: HandLeft},
				{Beat: 9, Duration: 1, Pitch: 60, Velocity: 85, Hand: HandRight},
				{Beat: 10, Duration: 1, Pitch: 62, Velocity: 85, Hand: HandRight},
				{Beat: 11, Duration: 1, Pitch: 64, Velocity: 85, Hand: HandRight},
				{Beat: 12, Duration: 1.5, Pitch: 64, Velocity: 85, Hand: HandRight},
				{Beat: 12, Duration: 4, Pitch: 43, Velocity: 60, Hand: HandLeft},
				{Beat: 13.5, Duration: 0.5, Pitch: 62, Velocity: 80, Hand: HandRight},
				{Beat: 14, Duration: 2, Pitch: 62, Velocity: 85, Hand: HandRight},
			},
		},
		{
			ID:       "c-major-scale",
			Name:     "C Major Scale",
			Composer: "Exercise",
			Schedule: Schedule{
				{Beat: 0, Duration: 0.5, Pitch: 60, Velocity: 70, Hand: HandRight},
				{Beat: 0.5, Duration: 0.5, Pitch: 62, Velocity: 70, Hand: HandRight},
				{Beat: 1, Duration: 0.5, Pitch: 64, Velocity: 70, Hand: HandRight},
				{Beat: 1.5, Duration: 0.5, Pitch: 65, Velocity: 70, Hand: HandRight},
				{Beat: 2, Duration: 0.5, Pitch: 67, Velocity: 70, Hand: HandRight},
				{Beat: 2.5, Duration: 0.5, Pitch: 69, Velocity: 70, Hand: HandRight},
				{Beat: 3, Duration: 0.5, Pitch: 71, Velocity: 70, Hand: HandRight},
				{Beat: 3.5, Duration: 0.5, Pitch: 72, Velocity: 70, Hand: HandRight},
				{Beat: 4, Duration: 0.5, Pitch: 48, Velocity: 70, Hand: HandLeft},
				{Beat: 4.5, Duration: 0.5, Pitch: 50, Velocity: 70, Hand: HandLeft},
				{Beat: 5, Duration: 0.5, Pitch: 52, Velocity: 70, Hand: HandLeft},
				{Beat: 5.5, Duration: 0.5, Pitch: 53, Velocity: 70, Hand: HandLeft},
				{Beat: 6, Duration: 0.5, Pitch: 55, Velocity: 70, Hand: HandLeft},
				{Beat: 6.5, Duration: 0.5, Pitch: 57, Velocity: 70, Hand: HandLeft},
				{Beat: 7, Duration: 0.5, Pitch: 59, Velocity: 70, Hand: HandLeft},
				{Beat: 7.5, Duration: 0.5, Pitch: 60, Velocity: 70, Hand: HandLeft},
			},
		},
	}
}
