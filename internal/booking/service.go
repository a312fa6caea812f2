package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
)

// Service is the outer layer the transports talk to. It runs the core
// operation, then executes the returned effects once the transaction has
// committed.
type Service struct {
	engine     *Engine
	waitlist   *Waitlist
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

func NewService(store Store, locker redisclient.Locker, publisher Publisher, policy Policy, logger zerolog.Logger, opts ...Option) *Service {
	engine := NewEngine(store, locker, policy, opts...)
	waitlist := NewWaitlist(engine)
	return &Service{
		engine:     engine,
		waitlist:   waitlist,
		dispatcher: NewDispatcher(publisher, waitlist, NewEmissionClock(engine.now), logger),
		logger:     logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) Engine() *Engine     { return s.engine }
func (s *Service) Waitlist() *Waitlist { return s.waitlist }

// dispatch runs effects detached from the caller's cancellation: the
// mutation has committed, its follow-ups should still go out.
func (s *Service) dispatch(ctx context.Context, fx Effects) {
	if fx.Empty() {
		return
	}
	s.dispatcher.Dispatch(context.WithoutCancel(ctx), fx)
}

func (s *Service) finish(ctx context.Context, res *Result, err error) (*Appointment, error) {
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, res.Effects)
	return res.Appointment, nil
}

// -- Slots --

func (s *Service) CreateSlot(ctx context.Context, in NewSlot) (*Slot, error) {
	return s.engine.slots.Create(ctx, in)
}

func (s *Service) CreateSlots(ctx context.Context, req BulkSlotRequest) ([]Slot, error) {
	slots, err := s.engine.slots.CreateBulk(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("provider_id", req.ProviderID.String()).
		Int("count", len(slots)).
		Msg("slots generated")
	return slots, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.engine.slots.GetSlot(ctx, id)
}

func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	return s.engine.slots.ListSlots(ctx, providerID, from, to)
}

func (s *Service) BlockSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time, reason string) ([]Slot, error) {
	return s.engine.slots.Block(ctx, providerID, from, to, reason)
}

// UnblockSlots reopens blocked slots and offers each to the waitlist.
func (s *Service) UnblockSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	slots, err := s.engine.slots.Unblock(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	var fx Effects
	for _, sl := range slots {
		fx.promote(Promotion{ProviderID: sl.ProviderID, SlotID: sl.ID})
	}
	s.dispatch(ctx, fx)
	return slots, nil
}

func (s *Service) CancelSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.engine.slots.Cancel(ctx, id)
}

// -- Appointments --

func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	res, err := s.engine.CreateAppointment(ctx, req)
	return s.finish(ctx, res, err)
}

func (s *Service) CancelAppointment(ctx context.Context, id, actorID uuid.UUID, reason string) (*Appointment, error) {
	res, err := s.engine.CancelAppointment(ctx, id, actorID, reason)
	return s.finish(ctx, res, err)
}

// RescheduleAppointment returns the replacement appointment.
func (s *Service) RescheduleAppointment(ctx context.Context, id, newSlotID uuid.UUID, reason string) (*Appointment, error) {
	res, err := s.engine.RescheduleAppointment(ctx, id, newSlotID, reason)
	return s.finish(ctx, res, err)
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	res, err := s.engine.Confirm(ctx, id)
	return s.finish(ctx, res, err)
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	res, err := s.engine.CheckIn(ctx, id)
	return s.finish(ctx, res, err)
}

func (s *Service) StartAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	res, err := s.engine.Start(ctx, id)
	return s.finish(ctx, res, err)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	res, err := s.engine.Complete(ctx, id)
	return s.finish(ctx, res, err)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	res, err := s.engine.MarkNoShow(ctx, id)
	return s.finish(ctx, res, err)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.engine.GetAppointment(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.engine.ListPatientAppointments(ctx, patientID, limit, offset)
}

func (s *Service) ListAppointmentsBySlot(ctx context.Context, slotID uuid.UUID) ([]Appointment, error) {
	return s.engine.ListSlotAppointments(ctx, slotID)
}

func (s *Service) RescheduleChain(ctx context.Context, id uuid.UUID) ([]Appointment, error) {
	return s.engine.RescheduleChain(ctx, id)
}

// -- Waitlist --

func (s *Service) JoinWaitlist(ctx context.Context, req JoinWaitlistRequest) (*WaitlistEntry, error) {
	return s.waitlist.Join(ctx, req)
}

func (s *Service) GetWaitlistEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	return s.waitlist.Get(ctx, id)
}

func (s *Service) ListWaitlist(ctx context.Context, providerID uuid.UUID) ([]WaitlistEntry, error) {
	return s.waitlist.ListProvider(ctx, providerID)
}

func (s *Service) OfferSlot(ctx context.Context, entryID, slotID uuid.UUID) (*WaitlistEntry, error) {
	entry, fx, err := s.waitlist.OfferSlot(ctx, entryID, slotID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, fx)
	return entry, nil
}

// PromoteWaitlist runs a promotion on demand. A nil entry means nobody was
// offered the slot.
func (s *Service) PromoteWaitlist(ctx context.Context, providerID, slotID uuid.UUID) (*WaitlistEntry, error) {
	entry, fx, err := s.waitlist.TryPromote(ctx, providerID, slotID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, fx)
	return entry, nil
}

func (s *Service) AcceptOffer(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, *Appointment, error) {
	entry, res, err := s.waitlist.AcceptOffer(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	s.dispatch(ctx, res.Effects)
	return entry, res.Appointment, nil
}

func (s *Service) DeclineOffer(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, error) {
	return s.waitlist.DeclineOffer(ctx, entryID)
}

func (s *Service) CancelWaitlistEntry(ctx context.Context, entryID uuid.UUID) (*WaitlistEntry, error) {
	return s.waitlist.Cancel(ctx, entryID)
}

// ExpireStaleOffers is intended to be called by the sweeper periodically
func (s *Service) ExpireStaleOffers(ctx context.Context) (int, error) {
	return s.waitlist.ExpireStaleOffers(ctx)
}
