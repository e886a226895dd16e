package assessment

import "FinPulse/internal/domain/models"

// History is a bounded FIFO of past observation sets, oldest first.
type History struct {
	size int
	sets []*models.ObservationSet
}

func NewHistory(size int) *History {
	if size < 0 {
		size = 0
	}
	return &History{size: size}
}

// Push appends obs and drops the oldest entries beyond the window.
func (h *History) Push(obs *models.ObservationSet) {
	if h.size == 0 || obs == nil {
		return
	}
	h.sets = append(h.sets, obs)
	if over := len(h.sets) - h.size; over > 0 {
		h.sets = append([]*models.ObservationSet(nil), h.sets[over:]...)
	}
}

func (h *History) Snapshot() []*models.ObservationSet {
	return append([]*models.ObservationSet(nil), h.sets...)
}

func (h *History) Len() int { return len(h.sets) }
