package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

// MemoryStore keeps appointments and party links in process. It applies the
// same conditional transitions as the postgres repositories under one mutex.
type MemoryStore struct {
	mu           sync.Mutex
	nextID       int64
	nextLinkID   int64
	appointments map[int64]*model.Appointment
	links        map[model.PartyRole]map[int64]*model.PartyLink
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[int64]*model.Appointment),
		links: map[model.PartyRole]map[int64]*model.PartyLink{
			model.PartyRoleFamily:   {},
			model.PartyRoleEducator: {},
		},
		now: time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now().UTC()
	a.ID = s.nextID
	a.Status = model.AppointmentStatusPending
	a.SettlementStatus = model.SettlementStatusNone
	a.InvoiceStatus = model.InvoiceStatusNone
	a.CreatedAt = now
	a.UpdatedAt = now
	s.appointments[a.ID] = clone(a)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointmentNotFound(id)
	}
	return clone(a), nil
}

func (s *MemoryStore) Accept(ctx context.Context, id int64, at time.Time, startPinHash, completePinHash string) (*model.Appointment, error) {
	return s.transition(id, ActionAccept, at, func(a *model.Appointment) {
		a.RespondedAt = ptr(at)
		a.StartPinHash = startPinHash
		a.CompletePinHash = completePinHash
	})
}

func (s *MemoryStore) Reject(ctx context.Context, id int64, at time.Time, reason string) (*model.Appointment, error) {
	return s.transition(id, ActionReject, at, func(a *model.Appointment) {
		a.RespondedAt = ptr(at)
		a.RejectionReason = reason
	})
}

func (s *MemoryStore) MarkStarted(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	return s.transition(id, ActionStart, at, func(a *model.Appointment) {
		a.StartedAt = ptr(at)
	})
}

func (s *MemoryStore) Complete(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	return s.transition(id, ActionComplete, at, func(a *model.Appointment) {
		a.CompletedAt = ptr(at)
		a.InvoiceStatus = model.InvoiceStatusPending
		applyOutcome(a, outcome, settlement)
	})
}

func (s *MemoryStore) Cancel(ctx context.Context, id int64, at time.Time, by model.PartyRole, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	return s.transition(id, ActionCancel, at, func(a *model.Appointment) {
		a.CancelledAt = ptr(at)
		a.CancelledBy = by
		applyOutcome(a, outcome, settlement)
	})
}

func (s *MemoryStore) MarkNoShow(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	return s.transition(id, ActionNoShow, at, func(a *model.Appointment) {
		applyOutcome(a, outcome, settlement)
	})
}

func (s *MemoryStore) MarkSettled(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	return s.updateSettlement(id, func(a *model.Appointment) {
		a.SettlementStatus = model.SettlementStatusSettled
		a.SettlementError = ""
		a.SettledAt = ptr(at)
		a.UpdatedAt = at
	})
}

func (s *MemoryStore) MarkSettlementFailed(ctx context.Context, id int64, at time.Time, reason string, permanent bool) (*model.Appointment, error) {
	return s.updateSettlement(id, func(a *model.Appointment) {
		if permanent {
			a.SettlementStatus = model.SettlementStatusFailed
		}
		a.SettlementAttempts++
		a.SettlementAttemptedAt = ptr(at)
		a.SettlementError = reason
		a.UpdatedAt = at
	})
}

func (s *MemoryStore) updateSettlement(id int64, apply func(*model.Appointment)) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointmentNotFound(id)
	}
	if a.SettlementStatus != model.SettlementStatusPending {
		return nil, apperr.Conflict("settlement of appointment %d is %s", id, a.SettlementStatus)
	}
	apply(a)
	return clone(a), nil
}

func (s *MemoryStore) ListPendingSettlements(ctx context.Context, limit int) ([]*model.Appointment, error) {
	pending := s.collect(func(a *model.Appointment) bool {
		return a.SettlementStatus == model.SettlementStatusPending
	})
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.SettlementAttempts != b.SettlementAttempts {
			return a.SettlementAttempts < b.SettlementAttempts
		}
		switch {
		case a.SettlementAttemptedAt == nil && b.SettlementAttemptedAt != nil:
			return true
		case a.SettlementAttemptedAt != nil && b.SettlementAttemptedAt == nil:
			return false
		case a.SettlementAttemptedAt != nil && !a.SettlementAttemptedAt.Equal(*b.SettlementAttemptedAt):
			return a.SettlementAttemptedAt.Before(*b.SettlementAttemptedAt)
		}
		return a.ID < b.ID
	})
	return truncate(pending, limit), nil
}

func (s *MemoryStore) MarkInvoiced(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	return s.updateInvoice(id, func(a *model.Appointment) {
		a.InvoiceStatus = model.InvoiceStatusIssued
		a.InvoicedAt = ptr(at)
		a.UpdatedAt = at
	})
}

func (s *MemoryStore) MarkInvoiceFailed(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	return s.updateInvoice(id, func(a *model.Appointment) {
		a.InvoiceAttempts++
		a.UpdatedAt = at
	})
}

func (s *MemoryStore) updateInvoice(id int64, apply func(*model.Appointment)) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointmentNotFound(id)
	}
	if a.InvoiceStatus != model.InvoiceStatusPending {
		return nil, apperr.Conflict("invoice of appointment %d is %s", id, a.InvoiceStatus)
	}
	apply(a)
	return clone(a), nil
}

func (s *MemoryStore) ListPendingInvoices(ctx context.Context, limit int) ([]*model.Appointment, error) {
	pending := s.collect(func(a *model.Appointment) bool {
		return a.InvoiceStatus == model.InvoiceStatusPending &&
			(a.SettlementStatus == model.SettlementStatusNone || a.SettlementStatus == model.SettlementStatusSettled)
	})
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].InvoiceAttempts != pending[j].InvoiceAttempts {
			return pending[i].InvoiceAttempts < pending[j].InvoiceAttempts
		}
		return pending[i].ID < pending[j].ID
	})
	return truncate(pending, limit), nil
}

func (s *MemoryStore) collect(match func(*model.Appointment) bool) []*model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*model.Appointment
	for _, a := range s.appointments {
		if match(a) {
			found = append(found, clone(a))
		}
	}
	return found
}

func truncate(list []*model.Appointment, limit int) []*model.Appointment {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

func (s *MemoryStore) Link(ctx context.Context, link *model.PartyLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParty, ok := s.links[link.Role]
	if !ok {
		return apperr.Validation("unknown party role %q", link.Role)
	}
	for _, existing := range s.allLinks() {
		if existing.TelegramChatID == link.TelegramChatID && (existing.Role != link.Role || existing.PartyID != link.PartyID) {
			return apperr.Conflict("telegram chat %d is already linked to another party", link.TelegramChatID)
		}
	}
	if existing, ok := byParty[link.PartyID]; ok {
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
	} else {
		s.nextLinkID++
		link.ID = s.nextLinkID
		link.CreatedAt = s.now().UTC()
	}
	stored := *link
	byParty[link.PartyID] = &stored
	return nil
}

func (s *MemoryStore) GetByChatID(ctx context.Context, chatID int64) (*model.PartyLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, link := range s.allLinks() {
		if link.TelegramChatID == chatID {
			found := *link
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetByParty(ctx context.Context, role model.PartyRole, partyID int64) (*model.PartyLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[role][partyID]
	if !ok {
		return nil, nil
	}
	found := *link
	return &found, nil
}

func (s *MemoryStore) allLinks() []*model.PartyLink {
	var all []*model.PartyLink
	for _, byParty := range s.links {
		for _, link := range byParty {
			all = append(all, link)
		}
	}
	return all
}

func (s *MemoryStore) transition(id int64, action Action, at time.Time, apply func(*model.Appointment)) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointmentNotFound(id)
	}
	if !ValidTransition(action, a.Status, a.IsStarted()) {
		return nil, transitionConflict(action, a.Status, a.IsStarted())
	}
	a.Status, _ = TargetStatus(action)
	a.UpdatedAt = at
	apply(a)
	return clone(a), nil
}

func applyOutcome(a *model.Appointment, outcome model.FinancialOutcome, settlement *model.PendingSettlement) {
	a.RefundAmount = outcome.RefundAmount
	a.FamilyChargeAmount = outcome.FamilyChargeAmount
	a.CompensationAmount = outcome.CompensationAmount
	a.PlatformFeeBps = outcome.PlatformFeeBps
	a.SettlementStatus, a.SettlementAction, a.SettlementAmount = settlementColumns(settlement)
}

func clone(a *model.Appointment) *model.Appointment {
	c := *a
	if a.ChildID != nil {
		c.ChildID = ptr(*a.ChildID)
	}
	for _, field := range []**time.Time{&c.StartedAt, &c.CompletedAt, &c.CancelledAt, &c.RespondedAt, &c.SettledAt, &c.SettlementAttemptedAt, &c.InvoicedAt} {
		if *field != nil {
			*field = ptr(**field)
		}
	}
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
