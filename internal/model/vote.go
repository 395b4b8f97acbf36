package model

import (
	"fmt"
	"strings"
)

// TargetKind is the kind of entity a vote applies to.
type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
)

// Direction is the direction of a vote.
type Direction int

const (
	Up   Direction = 1
	Down Direction = -1
)

// Value is the wire value sent as ?value= on the vote endpoints.
func (d Direction) Value() int { return int(d) }

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ParseDirection accepts "up"/"down" (and "+1"/"-1"/"1").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "1", "+1":
		return Up, nil
	case "down", "-1":
		return Down, nil
	}
	return 0, fmt.Errorf("model: unknown vote direction %q", s)
}

// Vote is a vote action. It is not persisted client-side; the server answers
// with the new total for the target.
type Vote struct {
	Kind      TargetKind
	TargetID  int64
	Direction Direction
}

// Key identifies the vote target for serialization purposes.
func (v Vote) Key() string {
	return fmt.Sprintf("%s/%d", v.Kind, v.TargetID)
}
