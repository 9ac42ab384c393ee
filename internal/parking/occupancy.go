package parking

import (
	"context"
	"errors"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
)

// Event drives a spot from one status to the next.
type Event string

const (
	EventReserve        Event = "reserve"
	EventEnter          Event = "enter"
	EventExitHold       Event = "exit_hold"
	EventExitRelease    Event = "exit_release"
	EventLapse          Event = "lapse"
	EventMaintenanceOn  Event = "maintenance_on"
	EventMaintenanceOff Event = "maintenance_off"
)

type edge struct {
	from, to model.SpotStatus
}

var transitions = map[Event]edge{
	EventReserve:        {model.SpotAvailable, model.SpotReserved},
	EventEnter:          {model.SpotReserved, model.SpotInUse},
	EventExitHold:       {model.SpotInUse, model.SpotReserved},
	EventExitRelease:    {model.SpotInUse, model.SpotAvailable},
	EventLapse:          {model.SpotReserved, model.SpotAvailable},
	EventMaintenanceOn:  {model.SpotAvailable, model.SpotMaintenance},
	EventMaintenanceOff: {model.SpotMaintenance, model.SpotAvailable},
}

// Transition reports the status an event leads to from the given status.
func Transition(from model.SpotStatus, ev Event) (model.SpotStatus, bool) {
	e, ok := transitions[ev]
	if !ok || e.from != from {
		return "", false
	}
	return e.to, true
}

// Deletable reports whether a spot in this status may be removed.
func Deletable(status model.SpotStatus) bool {
	return status != model.SpotReserved && status != model.SpotInUse
}

type move struct {
	spotID   uuid.UUID
	from, to model.SpotStatus
}

// lock reads a spot under a row lock held until the transaction ends.
func (w *work) lock(ctx context.Context, spotID uuid.UUID) (*model.ParkingSpot, error) {
	spot, err := w.r.LockSpot(ctx, spotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(KindNotFound, "spot %s does not exist", spotID)
	}
	if err != nil {
		return nil, err
	}
	return spot, nil
}

// apply moves a locked spot along ev, failing with SpotUnavailable when ev is
// not legal from its current status.
func (w *work) apply(ctx context.Context, spot *model.ParkingSpot, ev Event) error {
	to, ok := Transition(spot.Status, ev)
	if !ok {
		return fail(KindSpotUnavailable, "spot %s is %s and cannot %s", spot.ID, spot.Status, ev)
	}
	if err := w.r.SetSpotStatus(ctx, spot.ID, to); err != nil {
		return err
	}
	w.moves = append(w.moves, move{spotID: spot.ID, from: spot.Status, to: to})
	w.touch(spot.LotID)
	spot.Status = to
	return nil
}

func (w *work) occupy(ctx context.Context, spotID uuid.UUID, ev Event) (*model.ParkingSpot, error) {
	spot, err := w.lock(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if err := w.apply(ctx, spot, ev); err != nil {
		return nil, err
	}
	return spot, nil
}
