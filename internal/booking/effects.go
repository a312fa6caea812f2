package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Promotion asks the waitlist to look for a taker for a freed slot.
type Promotion struct {
	ProviderID uuid.UUID
	SlotID     uuid.UUID
}

// Effects are the follow-ups of a committed mutation. None of them may
// undo the mutation when they fail.
type Effects struct {
	Events     []Event
	Jobs       []Job
	Promotions []Promotion
}

func (e *Effects) event(ev Event) { e.Events = append(e.Events, ev) }
func (e *Effects) job(j Job) { e.Jobs = append(e.Jobs, j) }
func (e *Effects) promote(p Promotion) { e.Promotions = append(e.Promotions, p) }

func (e Effects) Empty() bool {
	return len(e.Events) == 0 && len(e.Jobs) == 0 && len(e.Promotions) == 0
}

// Publisher delivers events and jobs to whatever sits outside the core.
type Publisher interface {
	PublishEvent(ctx context.Context, ev Event) error
	PublishJob(ctx context.Context, job Job) error
}

// Promoter is the waitlist side of a Promotion.
type Promoter interface {
	TryPromote(ctx context.Context, providerID, slotID uuid.UUID) (*WaitlistEntry, Effects, error)
}

// Dispatcher executes Effects after commit. Failures are logged and
// swallowed.
type Dispatcher struct {
	publisher Publisher
	promoter  Promoter
	clock     *EmissionClock
	logger    zerolog.Logger
}

func NewDispatcher(publisher Publisher, promoter Promoter, clock *EmissionClock, logger zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = NewEmissionClock(nil)
	}
	return &Dispatcher{
		publisher: publisher,
		promoter:  promoter,
		clock:     clock,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, fx Effects) {
	for _, ev := range fx.Events {
		ev.EmittedAt = d.clock.Next()
		if err := d.publisher.PublishEvent(ctx, ev); err != nil {
			d.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("publish event failed")
		}
	}

	for _, job := range fx.Jobs {
		if err := d.publisher.PublishJob(ctx, job); err != nil {
			d.logger.Error().Err(err).Str("job", string(job.Kind)).Msg("publish job failed")
		}
	}

	if d.promoter == nil {
		return
	}
	for _, p := range fx.Promotions {
		entry, more, err := d.promoter.TryPromote(ctx, p.ProviderID, p.SlotID)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("provider_id", p.ProviderID.String()).
				Str("slot_id", p.SlotID.String()).
				Msg("waitlist promotion failed")
			continue
		}
		if entry != nil {
			d.logger.Info().
				Str("waitlist_entry_id", entry.ID.String()).
				Str("slot_id", p.SlotID.String()).
				Msg("waitlist entry offered freed slot")
		}
		d.Dispatch(ctx, more)
	}
}
