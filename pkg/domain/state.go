package domain

import "time"

// Snapshot is the persisted form of a preview session.
type Snapshot struct {
	SessionID string                    `json:"session_id"`
	PageID    string                    `json:"page_id"`
	States    map[string]map[string]any `json:"states"`
	Ambient   Ambient                   `json:"ambient"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// NewSnapshot creates an empty snapshot for a session.
func NewSnapshot(sessionID, pageID string) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		PageID:    pageID,
		States:    make(map[string]map[string]any),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.States = make(map[string]map[string]any, len(s.States))
	for id, st := range s.States {
		c.States[id] = CloneValue(st).(map[string]any)
	}
	c.Ambient = Ambient{
		Page:     cloneMap(s.Ambient.Page),
		Viewport: cloneMap(s.Ambient.Viewport),
		User:     cloneMap(s.Ambient.User),
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return CloneValue(m).(map[string]any)
}
