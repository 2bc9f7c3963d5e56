package clinic

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DomainError is a business-rule failure (not-found, insufficient stock,
// slot taken, bad credentials, ...). These never mutate State and never
// trigger a snapshot push — callers check for *DomainError and return it
// to the client unchanged.
type DomainError struct {
	Status  int // suggested HTTP status
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func domainErr(status int, format string, args ...any) *DomainError {
	return &DomainError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ---------- writes (must run under the coordinator's mutex) ----------

func (s *State) Signup(username, password string) (int, error) {
	for _, u := range s.Users {
		if u.Username == username {
			return 0, domainErr(409, "username %q already taken", username)
		}
	}
	id := s.NextSeq()
	s.Users[id] = &User{ID: id, Username: username, Password: password}
	return id, nil
}

func (s *State) Login(username, password string) (int, error) {
	for _, u := range s.Users {
		if u.Username == username && u.Password == password {
			return u.ID, nil
		}
	}
	return 0, domainErr(401, "invalid credentials")
}

func (s *State) Book(userID, doctorID int, timeSlot string) (int, error) {
	if _, ok := s.Users[userID]; !ok {
		return 0, domainErr(404, "user %d not found", userID)
	}
	doc, ok := s.Doctors[doctorID]
	if !ok {
		return 0, domainErr(404, "doctor %d not found", doctorID)
	}
	slotOK := false
	for _, slot := range doc.AvailableSlots {
		if slot == timeSlot {
			slotOK = true
			break
		}
	}
	if !slotOK {
		return 0, domainErr(409, "time slot %q not offered by doctor %d", timeSlot, doctorID)
	}
	for _, a := range s.Appointments {
		if a.DoctorID == doctorID && a.TimeSlot == timeSlot {
			return 0, domainErr(409, "time slot %q already booked", timeSlot)
		}
	}
	id := s.NextSeq()
	s.Appointments[id] = &Appointment{ID: id, UserID: userID, DoctorID: doctorID, TimeSlot: timeSlot}
	return id, nil
}

func (s *State) CancelAppointment(id int) error {
	if _, ok := s.Appointments[id]; !ok {
		return domainErr(404, "appointment %d not found", id)
	}
	delete(s.Appointments, id)
	return nil
}

func (s *State) RescheduleAppointment(id int, newSlot string) error {
	appt, ok := s.Appointments[id]
	if !ok {
		return domainErr(404, "appointment %d not found", id)
	}
	doc, ok := s.Doctors[appt.DoctorID]
	if !ok {
		return domainErr(404, "doctor %d not found", appt.DoctorID)
	}
	slotOK := false
	for _, slot := range doc.AvailableSlots {
		if slot == newSlot {
			slotOK = true
			break
		}
	}
	if !slotOK {
		return domainErr(409, "time slot %q not offered by doctor %d", newSlot, appt.DoctorID)
	}
	for otherID, a := range s.Appointments {
		if otherID != id && a.DoctorID == appt.DoctorID && a.TimeSlot == newSlot {
			return domainErr(409, "time slot %q already booked", newSlot)
		}
	}
	appt.TimeSlot = newSlot
	return nil
}

// Consult maps symptoms to a diagnosis and a prescription, the same
// minimal keyword mapping as original_source/backend/main.py:consult. It
// attaches the prescription to the caller's most recent appointment with
// this doctor, or creates a walk-in appointment if none exists.
func (s *State) Consult(userID, doctorID int, symptoms []string) (diagnosis string, prescription []PrescriptionItem, apptID int, err error) {
	if _, ok := s.Users[userID]; !ok {
		return "", nil, 0, domainErr(404, "user %d not found", userID)
	}
	if _, ok := s.Doctors[doctorID]; !ok {
		return "", nil, 0, domainErr(404, "doctor %d not found", doctorID)
	}

	text := strings.ToLower(strings.Join(symptoms, " "))
	switch {
	case strings.Contains(text, "fever") || strings.Contains(text, "temperature"):
		diagnosis = "Fever"
		prescription = []PrescriptionItem{{MedicineID: 0, Quantity: 2}}
	case strings.Contains(text, "cough") || strings.Contains(text, "cold"):
		diagnosis = "Common Cold"
		prescription = []PrescriptionItem{{MedicineID: 0, Quantity: 1}, {MedicineID: s.clampMed(2), Quantity: 1}}
	case strings.Contains(text, "pain") || strings.Contains(text, "headache"):
		diagnosis = "Headache"
		prescription = []PrescriptionItem{{MedicineID: 1, Quantity: 2}}
	default:
		diagnosis = "General Checkup"
		prescription = []PrescriptionItem{{MedicineID: s.clampMed(0), Quantity: 1}}
	}

	var latest *Appointment
	for _, a := range s.Appointments {
		if a.UserID == userID && a.DoctorID == doctorID {
			if latest == nil || a.ID > latest.ID {
				latest = a
			}
		}
	}
	if latest != nil {
		latest.Symptoms = symptoms
		latest.Prescription = prescription
		latest.Filled = false
		apptID = latest.ID
	} else {
		apptID = s.NextSeq()
		s.Appointments[apptID] = &Appointment{
			ID: apptID, UserID: userID, DoctorID: doctorID,
			TimeSlot: "walk-in", Symptoms: symptoms, Prescription: prescription,
		}
	}
	return diagnosis, prescription, apptID, nil
}

func (s *State) clampMed(idx int) int {
	if idx < len(s.Medicines) {
		return idx
	}
	return 0
}

func (s *State) Buy(buyer string, medicineID, quantity int) (totalCost int, err error) {
	if medicineID < 0 || medicineID >= len(s.Medicines) {
		return 0, domainErr(404, "medicine %d not found", medicineID)
	}
	med := s.Medicines[medicineID]
	if med.Stock < quantity {
		return 0, domainErr(409, "not enough stock of %s", med.Name)
	}
	med.Stock -= quantity
	totalCost = med.Price * quantity
	s.recordSale(med.ID, quantity, totalCost, buyer)
	return totalCost, nil
}

func (s *State) BuyBulk(userID int, items []PrescriptionItem) (totalCost int, err error) {
	for _, it := range items {
		if it.MedicineID < 0 || it.MedicineID >= len(s.Medicines) {
			return 0, domainErr(404, "medicine %d not found", it.MedicineID)
		}
		if s.Medicines[it.MedicineID].Stock < it.Quantity {
			return 0, domainErr(409, "not enough stock of %s", s.Medicines[it.MedicineID].Name)
		}
	}
	user := s.Users[userID]
	buyer := fmt.Sprintf("user#%d", userID)
	if user != nil {
		buyer = user.Username
	}
	for _, it := range items {
		med := s.Medicines[it.MedicineID]
		med.Stock -= it.Quantity
		cost := med.Price * it.Quantity
		totalCost += cost
		s.recordSale(med.ID, it.Quantity, cost, buyer)
	}
	return totalCost, nil
}

// BuyPrescription fills every unfilled item on an appointment's
// prescription in one all-or-nothing purchase, marking it filled.
func (s *State) BuyPrescription(apptID int) (totalCost int, err error) {
	appt, ok := s.Appointments[apptID]
	if !ok {
		return 0, domainErr(404, "appointment %d not found", apptID)
	}
	if len(appt.Prescription) == 0 {
		return 0, domainErr(409, "appointment %d has no prescription", apptID)
	}
	if appt.Filled {
		return 0, domainErr(409, "appointment %d prescription already filled", apptID)
	}
	total, err := s.BuyBulk(appt.UserID, appt.Prescription)
	if err != nil {
		return 0, err
	}
	appt.Filled = true
	return total, nil
}

func (s *State) recordSale(medicineID, quantity, total int, buyer string) {
	id := s.NextSeq()
	s.Sales = append(s.Sales, &SaleRecord{
		ID: id, MedicineID: medicineID, Quantity: quantity,
		Total: total, Buyer: buyer, UnixTime: time.Now().Unix(),
	})
}

func (s *State) RestockMedicine(medicineID, quantity int) error {
	if medicineID < 0 || medicineID >= len(s.Medicines) {
		return domainErr(404, "medicine %d not found", medicineID)
	}
	if quantity <= 0 {
		return domainErr(400, "quantity must be positive")
	}
	s.Medicines[medicineID].Stock += quantity
	return nil
}

func (s *State) RateDoctor(doctorID, rating int) (float64, error) {
	if _, ok := s.Doctors[doctorID]; !ok {
		return 0, domainErr(404, "doctor %d not found", doctorID)
	}
	if rating < 1 || rating > 5 {
		return 0, domainErr(400, "rating must be between 1 and 5")
	}
	stat, ok := s.Ratings[doctorID]
	if !ok {
		stat = &RatingStat{DoctorID: doctorID}
		s.Ratings[doctorID] = stat
	}
	stat.Count++
	stat.Sum += rating
	stat.Average = float64(stat.Sum) / float64(stat.Count)
	return stat.Average, nil
}

// ---------- reads (never funnelled; take the mutex, read, release) ----------

func (s *State) DoctorRating(doctorID int) (*RatingStat, error) {
	if _, ok := s.Doctors[doctorID]; !ok {
		return nil, domainErr(404, "doctor %d not found", doctorID)
	}
	if stat, ok := s.Ratings[doctorID]; ok {
		cp := *stat
		return &cp, nil
	}
	return &RatingStat{DoctorID: doctorID}, nil
}

func (s *State) DoctorAvailability(doctorID int) ([]string, error) {
	doc, ok := s.Doctors[doctorID]
	if !ok {
		return nil, domainErr(404, "doctor %d not found", doctorID)
	}
	booked := make(map[string]bool)
	for _, a := range s.Appointments {
		if a.DoctorID == doctorID {
			booked[a.TimeSlot] = true
		}
	}
	available := make([]string, 0, len(doc.AvailableSlots))
	for _, slot := range doc.AvailableSlots {
		if !booked[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

// SearchMedicines, UserAppointments, UserPrescriptions and
// MedicinesSnapshot all return independent copies rather than pointers into
// live State: the caller's Read call releases the mutex as soon as this
// function returns, so a pointer into State could be concurrently
// mutated by a later write while still being JSON-encoded by an earlier
// reader.

func (s *State) SearchMedicines(nameSubstr string) []Medicine {
	needle := strings.ToLower(nameSubstr)
	out := make([]Medicine, 0)
	for _, m := range s.Medicines {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			out = append(out, *m)
		}
	}
	return out
}

func (s *State) UserAppointments(userID int) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range s.Appointments {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) UserPrescriptions(userID int) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range s.Appointments {
		if a.UserID == userID && len(a.Prescription) > 0 {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MedicinesSnapshot returns an independent copy of the medicine catalog,
// safe to read after the replica's mutex has been released.
func (s *State) MedicinesSnapshot() []Medicine {
	out := make([]Medicine, len(s.Medicines))
	for i, m := range s.Medicines {
		out[i] = *m
	}
	return out
}

// SalesReport aggregates the append-only Sales log into per-medicine
// totals — business logic, not a replication concern.
type SalesReport struct {
	MedicineID   int `json:"medicine_id"`
	UnitsSold    int `json:"units_sold"`
	RevenueCents int `json:"revenue"`
}

func (s *State) SalesSummary() []SalesReport {
	totals := make(map[int]*SalesReport)
	for _, sale := range s.Sales {
		r, ok := totals[sale.MedicineID]
		if !ok {
			r = &SalesReport{MedicineID: sale.MedicineID}
			totals[sale.MedicineID] = r
		}
		r.UnitsSold += sale.Quantity
		r.RevenueCents += sale.Total
	}
	out := make([]SalesReport, 0, len(totals))
	for _, r := range totals {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MedicineID < out[j].MedicineID })
	return out
}
