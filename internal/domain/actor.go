package domain

import "fmt"

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

// Actor identifies who caused a transition. The zero value is invalid; build
// one with UserActor, AdminActor or SystemActor.
type Actor struct {
	kind ActorType
	id   int64
}

func UserActor(id int64) Actor  { return Actor{kind: ActorUser, id: id} }
func AdminActor(id int64) Actor { return Actor{kind: ActorAdmin, id: id} }
func SystemActor() Actor        { return Actor{kind: ActorSystem} }

func (a Actor) Type() ActorType { return a.kind }

// ID returns the user or admin id. ok is false for the system actor.
func (a Actor) ID() (id int64, ok bool) {
	if a.kind == ActorSystem || a.kind == "" {
		return 0, false
	}
	return a.id, true
}

func (a Actor) Valid() bool {
	switch a.kind {
	case ActorSystem:
		return true
	case ActorUser, ActorAdmin:
		return a.id > 0
	}
	return false
}

func (a Actor) String() string {
	if id, ok := a.ID(); ok {
		return fmt.Sprintf("%s:%d", a.kind, id)
	}
	return string(a.kind)
}

// ParseActor rebuilds an actor from its stored form.
func ParseActor(kind string, id *int64) (Actor, error) {
	switch ActorType(kind) {
	case ActorSystem:
		return SystemActor(), nil
	case ActorUser, ActorAdmin:
		if id == nil || *id <= 0 {
			return Actor{}, fmt.Errorf("%w: %s actor requires an id", ErrValidation, kind)
		}
		return Actor{kind: ActorType(kind), id: *id}, nil
	}
	return Actor{}, fmt.Errorf("%w: unknown actor type %q", ErrValidation, kind)
}
