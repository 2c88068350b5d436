package engine

import "github.com/pritam/bingocraft/internal/board"

// evaluateWin reports whether the completed objective set satisfies the
// win rule on the given board. Pure function of its inputs; the engine
// calls it after every completion under the instance lock.
func evaluateWin(rule WinRule, b *board.Board, completed map[string]bool) bool {
	switch rule {
	case WinRuleFullBoard:
		return fullBoardComplete(b, completed)
	case WinRuleLine:
		return anyLineComplete(b, completed)
	default:
		return false
	}
}

func fullBoardComplete(b *board.Board, completed map[string]bool) bool {
	for _, cell := range b.Cells {
		if !completed[cell.ObjectiveID] {
			return false
		}
	}
	return true
}

func anyLineComplete(b *board.Board, completed map[string]bool) bool {
	cellDone := func(row, col int) bool {
		return completed[b.Cell(row, col).ObjectiveID]
	}

	// Rows
	for row := 0; row < b.Rows; row++ {
		done := true
		for col := 0; col < b.Cols; col++ {
			if !cellDone(row, col) {
				done = false
				break
			}
		}
		if done {
			return true
		}
	}

	// Columns
	for col := 0; col < b.Cols; col++ {
		done := true
		for row := 0; row < b.Rows; row++ {
			if !cellDone(row, col) {
				done = false
				break
			}
		}
		if done {
			return true
		}
	}

	// Diagonals only exist on square boards.
	if b.Rows != b.Cols {
		return false
	}

	done := true
	for i := 0; i < b.Rows; i++ {
		if !cellDone(i, i) {
			done = false
			break
		}
	}
	if done {
		return true
	}

	done = true
	for i := 0; i < b.Rows; i++ {
		if !cellDone(i, b.Cols-1-i) {
			done = false
			break
		}
	}
	return done
}
