package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read and booking endpoints, any authenticated role (admin passes all checks)
	anyone := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleNurse, auth.RoleRegistrar))
	anyone.GET("/doctors/:id/availability", h.CheckAvailability)
	anyone.GET("/doctors/:id/slots", h.ListSlots)
	anyone.GET("/doctors/:id/next-available", h.NextAvailable)
	anyone.GET("/doctors/:id/calendar", h.GetCalendar)
	anyone.GET("/doctors/:id/working-hours", h.GetWorkingHours)
	anyone.GET("/doctors/:id/blocks", h.ListBlocks)
	anyone.GET("/doctors/:id/vacations", h.ListVacations)
	anyone.POST("/appointments", h.BookAppointment)
	anyone.GET("/appointments", h.ListAppointments)
	anyone.GET("/appointments/:id", h.GetAppointment)
	anyone.GET("/appointments/:id/can-modify", h.CanModify)
	anyone.POST("/appointments/:id/reschedule", h.RescheduleAppointment)
	anyone.POST("/appointments/:id/cancel", h.CancelAppointment)

	// Clinic staff
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleRegistrar))
	staff.GET("/doctors/:id/calendar/export", h.ExportCalendar)
	staff.GET("/doctors/:id/calendar.ics", h.CalendarFeed)
	staff.POST("/appointments/:id/confirm", h.ConfirmAppointment)
	staff.POST("/appointments/:id/complete", h.CompleteAppointment)
	staff.POST("/appointments/:id/no-show", h.MarkNoShow)

	// Schedule maintenance: the doctor or an admin
	owner := api.Group("", auth.RequireRole(auth.RoleDoctor))
	owner.PUT("/doctors/:id/working-hours", h.UpdateWorkingHours)
	owner.POST("/doctors/:id/blocks", h.CreateBlock)
	owner.DELETE("/doctors/:id/blocks/:blockId", h.DeleteBlock)
	owner.POST("/doctors/:id/vacations", h.CreateVacation)
	owner.DELETE("/doctors/:id/vacations/:vacationId", h.DeleteVacation)

	// Party removal, admin only
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors/:id/cancel-open", h.CancelOpenForDoctor)
	admin.POST("/patients/:id/cancel-open", h.CancelOpenForPatient)
}

// -- Request helpers --

func actingRole(c echo.Context) availability.Role {
	return availability.Role(auth.ActingRoleFromContext(c.Request().Context()))
}

// patientSelf returns the caller's patient id when it acts as a patient. A
// patient token carries the patient id as its subject.
func patientSelf(c echo.Context) (uuid.UUID, bool, error) {
	if actingRole(c) != availability.RolePatient {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, true, echo.NewHTTPError(http.StatusForbidden, "patient identity is not a patient id")
	}
	return id, true, nil
}

// ownPatient lets patients act only for themselves; other roles pass.
func ownPatient(c echo.Context, patientID uuid.UUID) error {
	self, isPatient, err := patientSelf(c)
	if err != nil || !isPatient {
		return err
	}
	if self != patientID {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only act on their own appointments")
	}
	return nil
}

// ownAppointment loads id and applies ownPatient to it.
func (h *Handler) ownAppointment(c echo.Context, id uuid.UUID) (*availability.Appointment, error) {
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if err := ownPatient(c, a.PatientID); err != nil {
		return nil, err
	}
	return a, nil
}

func idParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func dateQuery(c echo.Context, name string) (availability.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return availability.Date{}, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	d, err := availability.ParseDate(raw)
	if err != nil {
		return availability.Date{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return d, nil
}

// optionalDate falls back to def when the parameter is absent.
func optionalDate(c echo.Context, name string, def availability.Date) (availability.Date, error) {
	if c.QueryParam(name) == "" {
		return def, nil
	}
	return dateQuery(c, name)
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (h *Handler) today() availability.Date {
	return availability.DateOf(h.svc.now().In(h.svc.Location()))
}

// rangeQuery reads from/to, defaulting to a 30 day window starting today.
func (h *Handler) rangeQuery(c echo.Context) (availability.Date, availability.Date, error) {
	from, err := optionalDate(c, "from", h.today())
	if err != nil {
		return availability.Date{}, availability.Date{}, err
	}
	to, err := optionalDate(c, "to", from.AddDays(30))
	if err != nil {
		return availability.Date{}, availability.Date{}, err
	}
	return from, to, nil
}

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	var (
		conflict    *availability.SlotConflictError
		unavailable *availability.SlotUnavailableError
		he          *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &conflict):
		body := map[string]any{"error": "slot conflict"}
		if conflict.AppointmentID != uuid.Nil {
			body["appointment_id"] = conflict.AppointmentID
		}
		return echo.NewHTTPError(http.StatusConflict, body)
	case errors.As(err, &unavailable):
		return echo.NewHTTPError(http.StatusConflict, map[string]any{
			"error":  "slot unavailable",
			"reason": unavailable.Reason,
			"detail": unavailable.Detail,
		})
	case errors.Is(err, availability.ErrPastDate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, availability.ErrModificationWindowExceeded),
		errors.Is(err, availability.ErrAppointmentClosed):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, availability.ErrInvalidTransition), errors.Is(err, ErrStaleAppointment):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case isValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

var validationErrors = []error{
	availability.ErrInvalidTimeFormat,
	availability.ErrInvalidDate,
	availability.ErrInvalidTimeRange,
	availability.ErrInvalidDateRange,
	availability.ErrInvalidRecurrence,
	availability.ErrInvalidRecurrenceRange,
	availability.ErrInvalidSchedule,
	availability.ErrInvalidDuration,
	availability.ErrInvalidVacationType,
	ErrInvalidRequest,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// -- Availability Handlers --

func (h *Handler) CheckAvailability(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	date, err := dateQuery(c, "date")
	if err != nil {
		return err
	}
	at, err := availability.ParseTimeOfDay(c.QueryParam("time"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot, err := h.svc.Explain(c.Request().Context(), doctorID, date, at)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		Available: slot.Available(),
		Status:    slot.Status,
		Reason:    slot.Reason,
		Slot:      slot,
	})
}

func (h *Handler) ListSlots(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	date, err := dateQuery(c, "date")
	if err != nil {
		return err
	}
	granularity, err := intQuery(c, "granularity")
	if err != nil {
		return err
	}
	slots, err := h.svc.ListSlots(c.Request().Context(), doctorID, date, granularity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) NextAvailable(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	from, err := optionalDate(c, "from", h.today())
	if err != nil {
		return err
	}
	days, err := intQuery(c, "days")
	if err != nil {
		return err
	}
	duration, err := intQuery(c, "duration")
	if err != nil {
		return err
	}
	slot, ok, err := h.svc.NextAvailable(c.Request().Context(), doctorID, from, days, duration)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no available slot in range")
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) GetCalendar(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	date, err := optionalDate(c, "date", h.today())
	if err != nil {
		return err
	}
	cal, err := h.svc.Calendar(c.Request().Context(), doctorID, CalendarView(c.QueryParam("view")), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *Handler) ExportCalendar(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	week, err := optionalDate(c, "week", h.today())
	if err != nil {
		return err
	}
	buf, filename, err := h.svc.ExportWeek(c.Request().Context(), doctorID, week)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// CalendarFeed serves ?from..?to (default four weeks from today) as text/calendar.
func (h *Handler) CalendarFeed(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	from, err := optionalDate(c, "from", h.today())
	if err != nil {
		return err
	}
	to, err := optionalDate(c, "to", from.AddDays(27))
	if err != nil {
		return err
	}
	feed, err := h.svc.ExportICal(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}

// -- Schedule Handlers --

func (h *Handler) GetWorkingHours(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ws, err := h.svc.GetWorkingHours(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, DocFromSchedule(ws))
}

func (h *Handler) UpdateWorkingHours(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var doc WorkingHoursDoc
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ws, err := doc.Schedule()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.UpdateWorkingHours(c.Request().Context(), doctorID, ws); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, DocFromSchedule(ws))
}

func (h *Handler) ListBlocks(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	from, to, err := h.rangeQuery(c)
	if err != nil {
		return err
	}
	blocks, err := h.svc.ListBlocks(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	if blocks == nil {
		blocks = []availability.BlockedInterval{}
	}
	return c.JSON(http.StatusOK, blocks)
}

func (h *Handler) CreateBlock(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var b availability.BlockedInterval
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.BlockTime(c.Request().Context(), doctorID, &b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBlock(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	blockID, err := idParam(c, "blockId")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveBlock(c.Request().Context(), doctorID, blockID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListVacations(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	from, to, err := h.rangeQuery(c)
	if err != nil {
		return err
	}
	vacations, err := h.svc.ListVacations(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	if vacations == nil {
		vacations = []availability.Vacation{}
	}
	return c.JSON(http.StatusOK, vacations)
}

func (h *Handler) CreateVacation(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var v availability.Vacation
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddVacation(c.Request().Context(), doctorID, &v); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) DeleteVacation(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	vacationID, err := idParam(c, "vacationId")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveVacation(c.Request().Context(), doctorID, vacationID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Handlers --

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ownPatient(c, req.PatientID); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), req, actingRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f AppointmentFilter
	for name, dst := range map[string]*uuid.UUID{"doctor_id": &f.DoctorID, "patient_id": &f.PatientID} {
		if raw := c.QueryParam(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = id
		}
	}
	self, isPatient, err := patientSelf(c)
	if err != nil {
		return err
	}
	if isPatient {
		if f.PatientID != uuid.Nil && f.PatientID != self {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only list their own appointments")
		}
		f = AppointmentFilter{PatientID: self}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*availability.Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.ownAppointment(c, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CanModify(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.ownAppointment(c, id); err != nil {
		return err
	}
	resp, err := h.svc.CanModify(c.Request().Context(), id, actingRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.ownAppointment(c, id); err != nil {
		return err
	}
	res, err := h.svc.Reschedule(c.Request().Context(), id, req, actingRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req CancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if _, err := h.ownAppointment(c, id); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, actingRole(c), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ConfirmAppointment(c echo.Context) error {
	return h.statusChange(c, h.svc.Confirm)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	return h.statusChange(c, h.svc.Complete)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.statusChange(c, h.svc.MarkNoShow)
}

type statusFunc func(ctx context.Context, id uuid.UUID, role availability.Role) (*availability.Appointment, error)

func (h *Handler) statusChange(c echo.Context, fn statusFunc) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	a, err := fn(c.Request().Context(), id, actingRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelOpenForDoctor(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req CancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	n, err := h.svc.CancelOpenForDoctor(c.Request().Context(), doctorID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handler) CancelOpenForPatient(c echo.Context) error {
	patientID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req CancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	n, err := h.svc.CancelOpenForPatient(c.Request().Context(), patientID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"cancelled": n})
}
