package api

import "github.com/gin-gonic/gin"

// RegisterRoutes lays out the replica's HTTP surface: bare internal
// coordination endpoints, the clinic domain route group, and the
// websocket/debug endpoints alongside.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)
	router.GET("/time", h.Time)
	router.POST("/update_coordinator", h.UpdateCoordinator)
	router.POST("/push_state", h.PushState)
	router.GET("/status", h.Status)
	router.GET("/debug/audit", h.DebugAudit)
	router.GET("/ws", h.WebSocketHandler)

	domain := router.Group("/")
	{
		domain.POST("/signup", h.Signup)
		domain.POST("/login", h.Login)
		domain.POST("/book", h.Book)
		domain.POST("/cancel_appointment", h.CancelAppointment)
		domain.POST("/reschedule_appointment", h.RescheduleAppointment)
		domain.POST("/consult", h.Consult)
		domain.POST("/buy", h.Buy)
		domain.POST("/buy_bulk", h.BuyBulk)
		domain.POST("/buy_prescription", h.BuyPrescription)
		domain.POST("/restock", h.RestockMedicine)
		domain.POST("/rate_doctor", h.RateDoctor)

		domain.GET("/doctors", h.ListDoctors)
		domain.GET("/doctors/:doctor_id/rating", h.DoctorRating)
		domain.GET("/doctors/:doctor_id/availability", h.DoctorAvailability)
		domain.GET("/medicines", h.ListMedicines)
		domain.GET("/medicines/search", h.SearchMedicines)
		domain.GET("/users/:user_id/appointments", h.UserAppointments)
		domain.GET("/users/:user_id/prescriptions", h.UserPrescriptions)
		domain.GET("/sales", h.SalesSummary)
	}
}
