// Package clinic owns the clinic/pharmacy domain state. The replication
// core treats this State as an opaque, snapshot-replaceable value — see
// internal/replicate — so this package keeps no network or concurrency
// concerns of its own: every exported method assumes its caller already
// holds whatever lock guards the state.
package clinic

import "fmt"

// Medicine is an inventory line, identified by its position in the
// Medicines slice (matching original_source/backend/main.py, which
// addresses medicines by list index rather than a separate id field).
type Medicine struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
	Price int    `json:"price"`
}

type Doctor struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Specialty      string   `json:"specialty"`
	AvailableSlots []string `json:"available_slots"`
}

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type PrescriptionItem struct {
	MedicineID int `json:"medicine_id"`
	Quantity   int `json:"quantity"`
}

type Appointment struct {
	ID           int                `json:"id"`
	UserID       int                `json:"user_id"`
	DoctorID     int                `json:"doctor_id"`
	TimeSlot     string             `json:"time_slot"`
	Symptoms     []string           `json:"symptoms"`
	Prescription []PrescriptionItem `json:"prescription"`
	Filled       bool               `json:"filled"`
}

// RatingStat tracks a doctor's running rating average without keeping the
// full history (the original Python stores only ratings math as a
// non-goal; this mirrors that minimalism).
type RatingStat struct {
	DoctorID int     `json:"doctor_id"`
	Count    int     `json:"count"`
	Sum      int     `json:"sum"`
	Average  float64 `json:"average"`
}

type SaleRecord struct {
	ID         int    `json:"id"`
	MedicineID int    `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	Total      int    `json:"total"`
	Buyer      string `json:"buyer"`
	UnixTime   int64  `json:"unix_time"`
}

// State is the full in-memory application state: an opaque value the
// replication engine snapshots wholesale and replaces wholesale. It is
// never read from or written to disk.
type State struct {
	Users        map[int]*User        `json:"users"`
	Doctors      map[int]*Doctor      `json:"doctors"`
	Appointments map[int]*Appointment `json:"appointments"`
	Medicines    []*Medicine          `json:"medicines"`
	Ratings      map[int]*RatingStat  `json:"ratings"`
	Sales        []*SaleRecord        `json:"sales"`
	NextID       int                  `json:"next_id"`
}

// Seed builds the built-in starting state, matching the medicine and
// doctor lists hard-coded in original_source/backend/main.py.
func Seed() *State {
	return &State{
		Users:        make(map[int]*User),
		Appointments: make(map[int]*Appointment),
		Ratings:      make(map[int]*RatingStat),
		Sales:        make([]*SaleRecord, 0),
		NextID:       1,
		Medicines: []*Medicine{
			{ID: 0, Name: "Paracetamol", Stock: 10, Price: 20},
			{ID: 1, Name: "Ibuprofen", Stock: 5, Price: 30},
			{ID: 2, Name: "Amoxicillin", Stock: 7, Price: 50},
		},
		Doctors: map[int]*Doctor{
			0: {ID: 0, Name: "Dr. Mehta", Specialty: "General", AvailableSlots: []string{"10:00", "11:00", "15:00"}},
			1: {ID: 1, Name: "Dr. Rao", Specialty: "Pediatrics", AvailableSlots: []string{"09:30", "13:00", "16:00"}},
		},
	}
}

// NextSeq hands out the next shared id, mirroring the single
// itertools.count() counter in original_source/backend/main.py.
func (s *State) NextSeq() int {
	id := s.NextID
	s.NextID++
	return id
}

// Clone produces a structurally independent deep copy, suitable as a
// Snapshot that can later replace another replica's State wholesale.
func (s *State) Clone() *State {
	clone := &State{
		Users:        make(map[int]*User, len(s.Users)),
		Doctors:      make(map[int]*Doctor, len(s.Doctors)),
		Appointments: make(map[int]*Appointment, len(s.Appointments)),
		Medicines:    make([]*Medicine, len(s.Medicines)),
		Ratings:      make(map[int]*RatingStat, len(s.Ratings)),
		Sales:        make([]*SaleRecord, len(s.Sales)),
		NextID:       s.NextID,
	}
	for id, u := range s.Users {
		cp := *u
		clone.Users[id] = &cp
	}
	for id, d := range s.Doctors {
		cp := *d
		cp.AvailableSlots = append([]string(nil), d.AvailableSlots...)
		clone.Doctors[id] = &cp
	}
	for id, a := range s.Appointments {
		cp := *a
		cp.Symptoms = append([]string(nil), a.Symptoms...)
		cp.Prescription = append([]PrescriptionItem(nil), a.Prescription...)
		clone.Appointments[id] = &cp
	}
	for i, m := range s.Medicines {
		cp := *m
		clone.Medicines[i] = &cp
	}
	for id, r := range s.Ratings {
		cp := *r
		clone.Ratings[id] = &cp
	}
	for i, sale := range s.Sales {
		cp := *sale
		clone.Sales[i] = &cp
	}
	return clone
}

// Valid performs the structural shape check a follower runs before
// accepting a pushed snapshot. It rejects nil maps, which JSON decoding
// of a malformed payload can produce.
func (s *State) Valid() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.Users == nil || s.Doctors == nil || s.Appointments == nil || s.Ratings == nil {
		return fmt.Errorf("snapshot has nil collection")
	}
	return nil
}
