package clinic

import "testing"

func TestSignupAndLogin(t *testing.T) {
	s := Seed()
	id, err := s.Signup("alice", "hunter2")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero user id")
	}
	if _, err := s.Signup("alice", "other"); err == nil {
		t.Fatalf("expected duplicate signup to fail")
	}
	loginID, err := s.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginID != id {
		t.Fatalf("login id %d != signup id %d", loginID, id)
	}
	if _, err := s.Login("alice", "wrong"); err == nil {
		t.Fatalf("expected bad-password login to fail")
	}
}

func TestBookRejectsDoubleBooking(t *testing.T) {
	s := Seed()
	uid, _ := s.Signup("bob", "pw")
	if _, err := s.Book(uid, 0, "10:00"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := s.Book(uid, 0, "10:00"); err == nil {
		t.Fatalf("expected double-booked slot to fail")
	}
	if _, err := s.Book(uid, 0, "not-a-slot"); err == nil {
		t.Fatalf("expected unoffered slot to fail")
	}
}

func TestRescheduleAppointment(t *testing.T) {
	s := Seed()
	uid, _ := s.Signup("carol", "pw")
	apptID, _ := s.Book(uid, 0, "10:00")
	if err := s.RescheduleAppointment(apptID, "11:00"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if s.Appointments[apptID].TimeSlot != "11:00" {
		t.Fatalf("appointment not rescheduled")
	}
	if err := s.RescheduleAppointment(apptID, "not-a-slot"); err == nil {
		t.Fatalf("expected bad slot reschedule to fail")
	}
}

func TestCancelAppointment(t *testing.T) {
	s := Seed()
	uid, _ := s.Signup("dave", "pw")
	apptID, _ := s.Book(uid, 0, "15:00")
	if err := s.CancelAppointment(apptID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.CancelAppointment(apptID); err == nil {
		t.Fatalf("expected cancel of missing appointment to fail")
	}
}

func TestBuyDecrementsStockAndRecordsSale(t *testing.T) {
	s := Seed()
	startStock := s.Medicines[0].Stock
	total, err := s.Buy("walk-in", 0, 3)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if total != s.Medicines[0].Price*3 {
		t.Fatalf("unexpected total %d", total)
	}
	if s.Medicines[0].Stock != startStock-3 {
		t.Fatalf("stock not decremented: got %d", s.Medicines[0].Stock)
	}
	if len(s.Sales) != 1 {
		t.Fatalf("expected one sale record, got %d", len(s.Sales))
	}
	if _, err := s.Buy("walk-in", 0, 1000); err == nil {
		t.Fatalf("expected insufficient-stock buy to fail")
	}
}

func TestBuyPrescriptionMarksFilledAndRejectsRefill(t *testing.T) {
	s := Seed()
	uid, _ := s.Signup("erin", "pw")
	_, diag, apptID := mustConsult(t, s, uid, 0, []string{"bad fever"})
	if diag == "" {
		t.Fatalf("expected a diagnosis")
	}
	if _, err := s.BuyPrescription(apptID); err != nil {
		t.Fatalf("buy_prescription: %v", err)
	}
	if !s.Appointments[apptID].Filled {
		t.Fatalf("expected appointment marked filled")
	}
	if _, err := s.BuyPrescription(apptID); err == nil {
		t.Fatalf("expected re-fill of already-filled prescription to fail")
	}
}

func mustConsult(t *testing.T, s *State, userID, doctorID int, symptoms []string) ([]PrescriptionItem, string, int) {
	t.Helper()
	diagnosis, prescription, apptID, err := s.Consult(userID, doctorID, symptoms)
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	return prescription, diagnosis, apptID
}

func TestRateDoctorAverages(t *testing.T) {
	s := Seed()
	if _, err := s.RateDoctor(0, 5); err != nil {
		t.Fatalf("rate: %v", err)
	}
	avg, err := s.RateDoctor(0, 3)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if avg != 4 {
		t.Fatalf("expected average 4, got %v", avg)
	}
	if _, err := s.RateDoctor(0, 9); err == nil {
		t.Fatalf("expected out-of-range rating to fail")
	}
}

func TestSalesSummaryAggregatesByMedicine(t *testing.T) {
	s := Seed()
	if _, err := s.Buy("x", 0, 1); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := s.Buy("y", 0, 2); err != nil {
		t.Fatalf("buy: %v", err)
	}
	report := s.SalesSummary()
	if len(report) != 1 {
		t.Fatalf("expected one aggregated row, got %d", len(report))
	}
	if report[0].UnitsSold != 3 {
		t.Fatalf("expected 3 units sold, got %d", report[0].UnitsSold)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Seed()
	uid, _ := s.Signup("frank", "pw")
	clone := s.Clone()
	clone.Users[uid].Username = "mutated"
	if s.Users[uid].Username == "mutated" {
		t.Fatalf("clone mutation leaked into original")
	}
	if err := clone.Valid(); err != nil {
		t.Fatalf("clone should be valid: %v", err)
	}
}
