package timers

import "time"

// Timer is the stored form. End is set exactly when IsActive is false.
type Timer struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	Start       time.Time  `json:"start"`
	IsActive    bool       `json:"is_active"`
	End         *time.Time `json:"end,omitempty"`
}

func (t Timer) Clone() Timer {
	if t.End != nil {
		end := *t.End
		t.End = &end
	}
	return t
}

// Progress is the running time of an active timer, never negative.
func (t Timer) Progress(now time.Time) time.Duration {
	d := now.Sub(t.Start)
	if d < 0 {
		return 0
	}
	return d
}

// Duration is end - start for a stopped timer and zero otherwise.
func (t Timer) Duration() time.Duration {
	if t.IsActive || t.End == nil {
		return 0
	}
	return t.End.Sub(t.Start)
}

// View is the wire form sent to browsers. Times are Unix milliseconds and
// exactly one of Progress or Duration is set.
type View struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Start       int64  `json:"start"`
	IsActive    bool   `json:"isActive"`
	End         *int64 `json:"end,omitempty"`
	Progress    *int64 `json:"progress,omitempty"`
	Duration    *int64 `json:"duration,omitempty"`
}

func (t Timer) View(now time.Time) View {
	v := View{
		ID:          t.ID,
		Description: t.Description,
		Start:       t.Start.UnixMilli(),
		IsActive:    t.IsActive,
	}
	if t.IsActive {
		p := t.Progress(now).Milliseconds()
		v.Progress = &p
		return v
	}
	if t.End != nil {
		end := t.End.UnixMilli()
		d := end - v.Start
		v.End = &end
		v.Duration = &d
	}
	return v
}

// Filter keeps timers whose IsActive equals active.
func Filter(in []Timer, active bool) []Timer {
	out := make([]Timer, 0, len(in))
	for _, t := range in {
		if t.IsActive == active {
			out = append(out, t)
		}
	}
	return out
}

// Views never returns nil so an empty result encodes as [].
func Views(in []Timer, now time.Time) []View {
	out := make([]View, 0, len(in))
	for _, t := range in {
		out = append(out, t.View(now))
	}
	return out
}
