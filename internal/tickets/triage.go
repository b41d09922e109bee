package tickets

import (
	"errors"
	"sync"
)

// ErrNothingDragged is returned by Drop when no drag is in progress.
var ErrNothingDragged = errors.New("tickets: no ticket being dragged")

// TriageController turns drag/drop gestures into board moves. Pure
// state transitions, no I/O; the UI layer is responsible for
// suppressing default browser drag behavior.
type TriageController struct {
	store   *Store
	metrics *boardMetrics

	mu        sync.Mutex
	candidate string
	from      Bucket
}

// NewTriageController creates a controller for the given board.
func NewTriageController(store *Store) *TriageController {
	return &TriageController{
		store:   store,
		metrics: globalBoardMetrics(),
	}
}

// StartDrag records the drag candidate.
func (c *TriageController) StartDrag(id string) error {
	_, bucket, ok := c.store.Find(id)
	if !ok {
		return ErrUnknownTicket
	}

	c.mu.Lock()
	c.candidate = id
	c.from = bucket
	c.mu.Unlock()
	return nil
}

// DragOver acknowledges a hover. No state changes.
func (c *TriageController) DragOver() {}

// Drop moves the dragged ticket into the target bucket and clears the
// drag state. Dropping onto the source bucket is a no-op.
func (c *TriageController) Drop(target Bucket) error {
	if !target.Valid() {
		return ErrInvalidBucket
	}

	c.mu.Lock()
	id, from := c.candidate, c.from
	c.candidate = ""
	c.mu.Unlock()

	if id == "" {
		return ErrNothingDragged
	}
	if from == target {
		return nil
	}

	if err := c.store.Move(id, from, target); err != nil {
		return err
	}
	c.metrics.recordMove(target)
	return nil
}

// Dragging returns the current candidate id, empty when idle.
func (c *TriageController) Dragging() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidate
}
