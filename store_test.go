package sponsorpay

import (
	"context"
	"sync"
)

type TestStore struct {
	mu           sync.Mutex
	organizers   map[string]*Organizer
	sponsorships map[string]*Sponsorship
	updates      []ProfileUpdate
	markPaid     int
}

var (
	_ OrganizerStore   = (*TestStore)(nil)
	_ SponsorshipStore = (*TestStore)(nil)
)

func newTestStore() *TestStore {
	return &TestStore{
		organizers:   make(map[string]*Organizer),
		sponsorships: make(map[string]*Sponsorship),
	}
}

func (s *TestStore) putOrganizer(o *Organizer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.organizers[o.ID] = o
}

func (s *TestStore) putSponsorship(sp *Sponsorship) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sponsorships[sp.ID] = sp
}

func (s *TestStore) profileUpdates() []ProfileUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ProfileUpdate(nil), s.updates...)
}

func (s *TestStore) Organizer(_ context.Context, id string) (*Organizer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.organizers[id]

	if !ok {
		return nil, false, nil
	}

	cp := *o
	return &cp, true, nil
}

func (s *TestStore) UpdateProfile(_ context.Context, id string, u ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.organizers[id]

	if !ok {
		return ErrUnknownOrganizer
	}

	s.updates = append(s.updates, u)
	o.Profile.Apply(u)
	return nil
}

func (s *TestStore) MarkPaid(_ context.Context, ids []string, paymentID string, method Provider) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markPaid++

	var n int64

	for _, id := range ids {
		sp, ok := s.sponsorships[id]

		if !ok || sp.Status != SponsorshipPending {
			continue
		}

		sp.Status = SponsorshipPaid
		sp.PaymentID = paymentID
		sp.PaymentMethod = method
		n++
	}
	return n, nil
}

func (s *TestStore) Sponsorships(_ context.Context, ids []string) ([]*Sponsorship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := make([]*Sponsorship, 0, len(ids))

	for _, id := range ids {
		if sp, ok := s.sponsorships[id]; ok {
			cp := *sp
			ss = append(ss, &cp)
		}
	}
	return ss, nil
}

type testNotifier struct {
	mu     sync.Mutex
	err    error
	events []Event
}

func (n *testNotifier) Enqueue(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}

	n.events = append(n.events, e)
	return nil
}

func (n *testNotifier) sent() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]Event(nil), n.events...)
}
