package appointment

import (
	"context"
	"sync"
)

// InMemoryStore keeps the appointment book in memory. Load and save move the
// whole list, matching the Store contract.
type InMemoryStore struct {
	mu           sync.RWMutex
	appointments []Appointment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) LoadAppointments(_ context.Context) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Appointment, len(s.appointments))
	for i, appointment := range s.appointments {
		out[i] = cloneAppointment(appointment)
	}
	return out, nil
}

func (s *InMemoryStore) SaveAppointments(_ context.Context, appointments []Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = make([]Appointment, len(appointments))
	for i, appointment := range appointments {
		s.appointments[i] = cloneAppointment(appointment)
	}
	return nil
}

func cloneAppointment(a Appointment) Appointment {
	copied := a
	copied.DocumentNames = append([]string(nil), a.DocumentNames...)
	copied.Documents = make([]UploadedDocument, len(a.Documents))
	for i, doc := range a.Documents {
		if doc.WitnessArtifact != nil {
			artifact := *doc.WitnessArtifact
			doc.WitnessArtifact = &artifact
		}
		copied.Documents[i] = doc
	}
	return copied
}
