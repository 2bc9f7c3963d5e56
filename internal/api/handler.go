// Package api exposes the replica's HTTP surface: the internal
// coordination endpoints, the clinic domain endpoints, and the
// observability feed. Every handler is a thin adapter over
// internal/replicate.Engine and internal/clinic — no replication or
// domain logic lives here.
package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"clinicmesh/internal/clinic"
	"clinicmesh/internal/coordination"
	"clinicmesh/internal/replicate"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler holds everything a request handler needs: the replica's
// coordination state, the replication engine, and the event hub the
// websocket feed subscribes to.
type Handler struct {
	Replica *coordination.Replica
	Engine  *replicate.Engine
	Hub     *replicate.Hub
}

func NewHandler(r *coordination.Replica, e *replicate.Engine, hub *replicate.Hub) *Handler {
	return &Handler{Replica: r, Engine: e, Hub: hub}
}

// ---------- internal coordination endpoints ----------

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "replica_id": int(h.Replica.Self)})
}

func (h *Handler) Time(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"time": coordination.Now()})
}

func (h *Handler) UpdateCoordinator(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := coordination.DecodeUpdateCoordinator(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Replica.SetCoordinatorFromNotification(id)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "coordinator_id": int(id)})
}

func (h *Handler) PushState(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Engine.ReceivePush(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func (h *Handler) Status(c *gin.Context) {
	h.Replica.AsyncClockSync()
	c.JSON(http.StatusOK, gin.H{
		"replica_id":     int(h.Replica.Self),
		"coordinator_id": int(h.Replica.CoordinatorID()),
		"is_coordinator": h.Replica.IsCoordinator(),
		"logical_clock":  h.Replica.LogicalClock(),
		"peers":          h.Replica.Peers.IDs(),
	})
}

func (h *Handler) DebugAudit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.Engine.Audit.List()})
}

// ---------- observability feed ----------

// WebSocketHandler streams hub events to a connected client, plus a
// ticker-driven status heartbeat, so a dashboard can watch coordinator
// and clock state change live without polling.
func (h *Handler) WebSocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	statusFrame := func() map[string]any {
		return map[string]any{
			"type":           "status",
			"replica_id":     int(h.Replica.Self),
			"coordinator_id": int(h.Replica.CoordinatorID()),
			"logical_clock":  h.Replica.LogicalClock(),
			"timestamp":      time.Now().Unix(),
		}
	}
	if conn.WriteJSON(statusFrame()) != nil {
		return
	}

	events, unsubscribe := h.Hub.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if conn.WriteJSON(gin.H{"type": "event", "kind": ev.Kind, "data": ev.Data, "at": ev.At}) != nil {
				return
			}
		case <-ticker.C:
			if conn.WriteJSON(statusFrame()) != nil {
				return
			}
		}
	}
}

// ---------- domain write endpoints (funnelled through Engine.Apply) ----------

func readBody(c *gin.Context) []byte {
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var userID int
	resp, status, err := h.Engine.Apply("signup", "/signup", body, func(s *clinic.State) error {
		id, err := s.Signup(req.Username, req.Password)
		userID = id
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"user_id": userID} })
}

// Login is a credential check, not a mutation, so it is served locally
// off h.Replica.Read like the other read endpoints, never through
// h.Engine.Apply — reads never pass through the write funnel.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var userID int
	var err error
	h.Replica.Read(func(s *clinic.State) { userID, err = s.Login(req.Username, req.Password) })
	if err != nil {
		if de, ok := err.(*clinic.DomainError); ok {
			c.JSON(de.Status, gin.H{"error": de.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "SUCCESS", "user_id": userID})
}

func (h *Handler) Book(c *gin.Context) {
	var req struct {
		UserID   int    `json:"user_id" binding:"required"`
		DoctorID int    `json:"doctor_id"`
		TimeSlot string `json:"time_slot" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var apptID int
	resp, status, err := h.Engine.Apply("book", "/book", body, func(s *clinic.State) error {
		id, err := s.Book(req.UserID, req.DoctorID, req.TimeSlot)
		apptID = id
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"appointment_id": apptID} })
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	var req struct {
		AppointmentID int `json:"appointment_id" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, status, err := h.Engine.Apply("cancel_appointment", "/cancel_appointment", body, func(s *clinic.State) error {
		return s.CancelAppointment(req.AppointmentID)
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"cancelled": true} })
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	var req struct {
		AppointmentID int    `json:"appointment_id" binding:"required"`
		TimeSlot      string `json:"time_slot" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, status, err := h.Engine.Apply("reschedule_appointment", "/reschedule_appointment", body, func(s *clinic.State) error {
		return s.RescheduleAppointment(req.AppointmentID, req.TimeSlot)
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"rescheduled": true} })
}

func (h *Handler) Consult(c *gin.Context) {
	var req struct {
		UserID   int      `json:"user_id" binding:"required"`
		DoctorID int      `json:"doctor_id"`
		Symptoms []string `json:"symptoms" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var diagnosis string
	var prescription []clinic.PrescriptionItem
	var apptID int
	resp, status, err := h.Engine.Apply("consult", "/consult", body, func(s *clinic.State) error {
		d, p, id, err := s.Consult(req.UserID, req.DoctorID, req.Symptoms)
		diagnosis, prescription, apptID = d, p, id
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H {
		return gin.H{"diagnosis": diagnosis, "prescription": prescription, "appointment_id": apptID}
	})
}

func (h *Handler) Buy(c *gin.Context) {
	var req struct {
		Buyer      string `json:"buyer" binding:"required"`
		MedicineID int    `json:"medicine_id"`
		Quantity   int    `json:"quantity" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var total int
	resp, status, err := h.Engine.Apply("buy", "/buy", body, func(s *clinic.State) error {
		t, err := s.Buy(req.Buyer, req.MedicineID, req.Quantity)
		total = t
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"total_cost": total} })
}

func (h *Handler) BuyBulk(c *gin.Context) {
	var req struct {
		UserID int                       `json:"user_id" binding:"required"`
		Items  []clinic.PrescriptionItem `json:"items" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var total int
	resp, status, err := h.Engine.Apply("buy_bulk", "/buy_bulk", body, func(s *clinic.State) error {
		t, err := s.BuyBulk(req.UserID, req.Items)
		total = t
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"total_cost": total} })
}

func (h *Handler) BuyPrescription(c *gin.Context) {
	var req struct {
		AppointmentID int `json:"appointment_id" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var total int
	resp, status, err := h.Engine.Apply("buy_prescription", "/buy_prescription", body, func(s *clinic.State) error {
		t, err := s.BuyPrescription(req.AppointmentID)
		total = t
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"total_cost": total} })
}

func (h *Handler) RestockMedicine(c *gin.Context) {
	var req struct {
		MedicineID int `json:"medicine_id"`
		Quantity   int `json:"quantity" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, status, err := h.Engine.Apply("restock", "/restock", body, func(s *clinic.State) error {
		return s.RestockMedicine(req.MedicineID, req.Quantity)
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"restocked": true} })
}

func (h *Handler) RateDoctor(c *gin.Context) {
	var req struct {
		DoctorID int `json:"doctor_id"`
		Rating   int `json:"rating" binding:"required"`
	}
	body := readBody(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var avg float64
	resp, status, err := h.Engine.Apply("rate_doctor", "/rate_doctor", body, func(s *clinic.State) error {
		a, err := s.RateDoctor(req.DoctorID, req.Rating)
		avg = a
		return err
	})
	h.respondWrite(c, resp, status, err, func() gin.H { return gin.H{"average_rating": avg} })
}

// respondWrite relays a forwarded response verbatim, or renders the local
// result (success via build(), failure via err's domain status). A local
// success always carries "status":"SUCCESS" alongside build()'s fields.
func (h *Handler) respondWrite(c *gin.Context, fwdResp []byte, fwdStatus int, err error, build func() gin.H) {
	if fwdResp != nil {
		c.Data(fwdStatus, "application/json", fwdResp)
		return
	}
	if err != nil {
		if de, ok := err.(*clinic.DomainError); ok {
			c.JSON(de.Status, gin.H{"error": de.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body := build()
	body["status"] = "SUCCESS"
	c.JSON(http.StatusOK, body)
}

// ---------- domain read endpoints (served locally, never funnelled) ----------

func (h *Handler) DoctorRating(c *gin.Context) {
	doctorID := paramInt(c, "doctor_id")
	var stat *clinic.RatingStat
	var err error
	h.Replica.Read(func(s *clinic.State) { stat, err = s.DoctorRating(doctorID) })
	h.respondRead(c, stat, err)
}

func (h *Handler) DoctorAvailability(c *gin.Context) {
	doctorID := paramInt(c, "doctor_id")
	var slots []string
	var err error
	h.Replica.Read(func(s *clinic.State) { slots, err = s.DoctorAvailability(doctorID) })
	h.respondRead(c, gin.H{"available_slots": slots}, err)
}

func (h *Handler) SearchMedicines(c *gin.Context) {
	needle := c.Query("name")
	var meds []clinic.Medicine
	h.Replica.Read(func(s *clinic.State) { meds = s.SearchMedicines(needle) })
	c.JSON(http.StatusOK, gin.H{"medicines": meds})
}

// ListDoctors and ListMedicines serve the seeded catalogs. Matching
// original_source/backend/main.py, fetching the medicine list is also
// where a client-driven clock sync gets triggered.
func (h *Handler) ListDoctors(c *gin.Context) {
	var doctors []clinic.Doctor
	h.Replica.Read(func(s *clinic.State) {
		doctors = make([]clinic.Doctor, 0, len(s.Doctors))
		for _, d := range s.Doctors {
			doctors = append(doctors, *d)
		}
	})
	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

func (h *Handler) ListMedicines(c *gin.Context) {
	h.Replica.AsyncClockSync()
	var meds []clinic.Medicine
	h.Replica.Read(func(s *clinic.State) { meds = s.MedicinesSnapshot() })
	c.JSON(http.StatusOK, gin.H{"medicines": meds})
}

func (h *Handler) UserAppointments(c *gin.Context) {
	userID := paramInt(c, "user_id")
	var appts []clinic.Appointment
	h.Replica.Read(func(s *clinic.State) { appts = s.UserAppointments(userID) })
	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

func (h *Handler) UserPrescriptions(c *gin.Context) {
	userID := paramInt(c, "user_id")
	var appts []clinic.Appointment
	h.Replica.Read(func(s *clinic.State) { appts = s.UserPrescriptions(userID) })
	c.JSON(http.StatusOK, gin.H{"prescriptions": appts})
}

func (h *Handler) SalesSummary(c *gin.Context) {
	var report []clinic.SalesReport
	h.Replica.Read(func(s *clinic.State) { report = s.SalesSummary() })
	c.JSON(http.StatusOK, gin.H{"sales": report})
}

func (h *Handler) respondRead(c *gin.Context, data any, err error) {
	if err != nil {
		if de, ok := err.(*clinic.DomainError); ok {
			c.JSON(de.Status, gin.H{"error": de.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func paramInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return -1
	}
	return v
}
