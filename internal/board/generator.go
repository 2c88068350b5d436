package board

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pritam/bingocraft/internal/catalog"
)

// ErrInsufficientObjectives is returned when the catalog holds fewer
// distinct objectives than the requested grid has cells.
var ErrInsufficientObjectives = errors.New("not enough objectives for board size")

// Cell is one position on a board, bound to a single objective.
type Cell struct {
	Index       int    `json:"index"`
	ObjectiveID string `json:"objective_id"`
	Category    string `json:"category"`
	Label       string `json:"label"`
}

// Board is the fixed grid of objectives for one game instance.
// Immutable after creation.
type Board struct {
	ID        string    `json:"id"`
	Seed      int64     `json:"seed"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Cells     []Cell    `json:"cells"`
	CreatedAt time.Time `json:"created_at"`
}

// Generate selects rows*cols distinct objectives from the catalog.
// The selection is fully determined by the seed: the same seed always
// yields the same board, which keeps games replayable and tests stable.
func Generate(cat *catalog.Catalog, seed int64, rows, cols int) (*Board, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("board dimensions must be positive, got %dx%d", rows, cols)
	}

	cells := rows * cols
	objectives := cat.Objectives()
	if len(objectives) < cells {
		return nil, fmt.Errorf("%w: need %d, catalog has %d", ErrInsufficientObjectives, cells, len(objectives))
	}

	// Deterministic Fisher-Yates over the catalog order, driven by an
	// HMAC-SHA256 byte stream keyed on the seed. math/rand is not used
	// because its shuffle output is not pinned across Go releases.
	stream := newByteStream(seed)
	for i := len(objectives) - 1; i > 0; i-- {
		j := int(stream.nextUint64() % uint64(i+1))
		objectives[i], objectives[j] = objectives[j], objectives[i]
	}

	board := &Board{
		ID:        uuid.New().String(),
		Seed:      seed,
		Rows:      rows,
		Cols:      cols,
		Cells:     make([]Cell, cells),
		CreatedAt: time.Now().UTC(),
	}

	for i := 0; i < cells; i++ {
		obj := objectives[i]
		board.Cells[i] = Cell{
			Index:       i,
			ObjectiveID: obj.ID,
			Category:    obj.Category,
			Label:       obj.Label,
		}
	}

	return board, nil
}

// Cell returns the cell at (row, col).
func (b *Board) Cell(row, col int) Cell {
	return b.Cells[row*b.Cols+col]
}

// CellsByCategory returns the indexes of all cells whose objective
// matches the given category tag.
func (b *Board) CellsByCategory(category string) []int {
	var indexes []int
	for _, cell := range b.Cells {
		if cell.Category == category {
			indexes = append(indexes, cell.Index)
		}
	}
	return indexes
}

// byteStream yields a deterministic byte sequence from a seed via
// repeated HMAC-SHA256 rounds.
type byteStream struct {
	key    []byte
	round  uint64
	pos    int
	buffer [32]byte
}

func newByteStream(seed int64) *byteStream {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seed))
	s := &byteStream{key: key}
	s.generateRound()
	return s
}

func (s *byteStream) next() byte {
	if s.pos >= len(s.buffer) {
		s.round++
		s.pos = 0
		s.generateRound()
	}
	b := s.buffer[s.pos]
	s.pos++
	return b
}

func (s *byteStream) nextUint64() uint64 {
	var raw [8]byte
	for i := range raw {
		raw[i] = s.next()
	}
	return binary.BigEndian.Uint64(raw[:])
}

func (s *byteStream) generateRound() {
	h := hmac.New(sha256.New, s.key)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], s.round)
	h.Write(msg[:])
	copy(s.buffer[:], h.Sum(nil))
}
