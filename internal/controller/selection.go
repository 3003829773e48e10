package controller

import (
	"sort"

	"go.uber.org/zap"
)

// ToggleSelect flips selection membership for a positional index into the
// message list. Out-of-range indices are ignored.
func (c *Controller) ToggleSelect(index int) {
	if index < 0 || index >= c.hist.Len() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selection[index]; ok {
		delete(c.selection, index)
	} else {
		c.selection[index] = struct{}{}
	}
}

// ClearSelection empties the selection set. Idempotent.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selection) > 0 {
		c.selection = make(map[int]struct{})
	}
}

// Selected returns the selected indices in ascending order.
func (c *Controller) Selected() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

func (c *Controller) selectedLocked() []int {
	out := make([]int, 0, len(c.selection))
	for i := range c.selection {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// invalidateSelectionLocked drops the selection after any operation that
// removed or reordered items; indices are positional and no longer valid.
// Caller holds c.mu.
func (c *Controller) invalidateSelectionLocked() {
	if len(c.selection) > 0 {
		c.selection = make(map[int]struct{})
	}
}

// BulkDelete issues one batched delete request for the selected messages'
// ids and clears the selection regardless of outcome. Local state changes
// only when the confirming events arrive; optimistic removal is not used
// for deletion.
func (c *Controller) BulkDelete() {
	c.mu.Lock()
	indices := c.selectedLocked()
	c.invalidateSelectionLocked()
	c.mu.Unlock()
	if len(indices) == 0 {
		return
	}

	ids := c.hist.IDsAt(indices)
	if len(ids) == 0 {
		// Only optimistic placeholders were selected; nothing deletable yet.
		c.logger.Debug("bulk delete skipped", zap.Ints("indices", indices))
		return
	}
	if err := c.gw.SendDelete(ids...); err != nil {
		c.fail(DispatchFailure, "bulk_delete", err)
	}
}

// BulkForward hands the selected messages' ids to the forward-target picker
// and clears the selection. The cross-chat copy is the picker's job.
func (c *Controller) BulkForward(picker ForwardPicker) {
	c.mu.Lock()
	indices := c.selectedLocked()
	c.invalidateSelectionLocked()
	c.mu.Unlock()
	if len(indices) == 0 || picker == nil {
		return
	}

	ids := c.hist.IDsAt(indices)
	if len(ids) == 0 {
		return
	}
	picker.ForwardMessages(ids)
}
