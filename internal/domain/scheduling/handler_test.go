package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/platform/auth"
)

// testPatientID is the subject of every request built by newRequest.
var testPatientID = uuid.MustParse("3f6c2a1e-8b4d-4e7f-9a10-5c2b7d9e0f11")

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *fixture) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	return h, e, f
}

func newRequest(method, target, body, role string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := auth.WithIdentity(req.Context(), testPatientID.String(), []string{role})
	return req.WithContext(ctx)
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func bookBody(doctorID uuid.UUID, date, at string) string {
	return `{"doctor_id":"` + doctorID.String() + `","patient_id":"` + testPatientID.String() +
		`","date":"` + date + `","time":"` + at + `"}`
}

func TestHandler_BookAppointment(t *testing.T) {
	h, e, f := newTestHandler(t)
	req := newRequest(http.MethodPost, "/", bookBody(f.doctorID, "2024-01-08", "10:00"), auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.BookAppointment(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a availability.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != availability.StatusPending || a.Time != availability.MustTime("10:00") {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_BookAppointment_Conflict(t *testing.T) {
	h, e, f := newTestHandler(t)
	existing := f.book(t, "10:00", 30, availability.RoleDoctor)

	req := newRequest(http.MethodPost, "/", bookBody(f.doctorID, "2024-01-08", "10:00"), auth.RolePatient)
	rec := httptest.NewRecorder()
	err := h.BookAppointment(e.NewContext(req, rec))
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	he := err.(*echo.HTTPError)
	body, ok := he.Message.(map[string]any)
	if !ok || body["appointment_id"] != existing.ID {
		t.Errorf("expected conflict body to name %s, got %v", existing.ID, he.Message)
	}
}

func TestHandler_BookAppointment_Errors(t *testing.T) {
	h, e, f := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"doctor_id":`, http.StatusBadRequest},
		{"bad time", bookBody(f.doctorID, "2024-01-08", "25:00"), http.StatusBadRequest},
		{"missing doctor", `{"patient_id":"` + testPatientID.String() + `","date":"2024-01-08","time":"10:00"}`, http.StatusBadRequest},
		{"missing time", `{"doctor_id":"` + f.doctorID.String() + `","patient_id":"` + testPatientID.String() + `","date":"2024-01-08"}`, http.StatusBadRequest},
		{"past date", bookBody(f.doctorID, "2024-01-01", "10:00"), http.StatusUnprocessableEntity},
		{"break", bookBody(f.doctorID, "2024-01-08", "12:30"), http.StatusConflict},
		{"day off", bookBody(f.doctorID, "2024-01-09", "10:00"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(http.MethodPost, "/", tt.body, auth.RolePatient)
			rec := httptest.NewRecorder()
			err := h.BookAppointment(e.NewContext(req, rec))
			if code := httpCode(t, err); code != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, code, err)
			}
		})
	}
}

func TestHandler_CheckAvailability(t *testing.T) {
	h, e, f := newTestHandler(t)
	req := newRequest(http.MethodGet, "/?date=2024-01-08&time=12:15", "", auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.CheckAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp AvailabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Available || resp.Status != availability.SlotOutOfHours || resp.Reason != availability.ReasonBreak {
		t.Errorf("expected break, got %+v", resp)
	}
}

func TestHandler_CheckAvailability_BadParams(t *testing.T) {
	h, e, f := newTestHandler(t)
	tests := []struct {
		name, id, query string
	}{
		{"bad id", "not-a-uuid", "?date=2024-01-08&time=10:00"},
		{"missing date", f.doctorID.String(), "?time=10:00"},
		{"bad date", f.doctorID.String(), "?date=2024-13-01&time=10:00"},
		{"bad time", f.doctorID.String(), "?date=2024-01-08&time=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/"+tt.query, "", auth.RolePatient)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if code := httpCode(t, h.CheckAvailability(c)); code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}
}

func TestHandler_ListSlots(t *testing.T) {
	h, e, f := newTestHandler(t)
	req := newRequest(http.MethodGet, "/?date=2024-01-08&granularity=60", "", auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.ListSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var slots []availability.Slot
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 {
		t.Errorf("expected 16 hourly slots, got %d", len(slots))
	}
}

func TestHandler_NextAvailable_NoneFound(t *testing.T) {
	h, e, _ := newTestHandler(t)
	req := newRequest(http.MethodGet, "/?from=2024-01-09&days=3", "", auth.RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if code := httpCode(t, h.NextAvailable(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetCalendar_Week(t *testing.T) {
	h, e, f := newTestHandler(t)
	req := newRequest(http.MethodGet, "/?view=week&date=2024-01-10", "", auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.GetCalendar(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cal Calendar
	if err := json.Unmarshal(rec.Body.Bytes(), &cal); err != nil {
		t.Fatal(err)
	}
	if cal.View != ViewWeek || cal.Week == nil || cal.Week.Start != clinicDay {
		t.Errorf("unexpected calendar %+v", cal)
	}
}

func TestHandler_ExportCalendar(t *testing.T) {
	h, e, f := newTestHandler(t)
	req := newRequest(http.MethodGet, "/?week=2024-01-08", "", auth.RoleNurse)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.ExportCalendar(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, ".xlsx") {
		t.Errorf("unexpected disposition %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a workbook body")
	}
}

func TestHandler_CalendarFeed(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, "10:00", 30, availability.RoleDoctor)

	req := newRequest(http.MethodGet, "/?from=2024-01-08&to=2024-01-14", "", auth.RoleRegistrar)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.CalendarFeed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %q", ct)
	}
	if strings.Count(rec.Body.String(), "BEGIN:VEVENT") != 1 {
		t.Errorf("expected one event, got %s", rec.Body.String())
	}

	req = newRequest(http.MethodGet, "/?from=2024-01-08&to=2024-01-01", "", auth.RoleRegistrar)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())
	if code := httpCode(t, h.CalendarFeed(c)); code != http.StatusBadRequest {
		t.Errorf("inverted range = %d, want 400", code)
	}
}

func TestHandler_UpdateWorkingHours(t *testing.T) {
	h, e, f := newTestHandler(t)
	body := `{"friday":{"working":true,"start":"08:00","end":"12:00"}}`
	req := newRequest(http.MethodPut, "/", body, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.UpdateWorkingHours(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc WorkingHoursDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc) != 7 || !doc["friday"].Working || doc["monday"].Working {
		t.Errorf("expected only friday working, got %+v", doc)
	}
}

func TestHandler_UpdateWorkingHours_Invalid(t *testing.T) {
	h, e, f := newTestHandler(t)
	for _, body := range []string{
		`{"funday":{"working":true,"start":"08:00","end":"12:00"}}`,
		`{"friday":{"working":true,"start":"12:00","end":"08:00"}}`,
	} {
		req := newRequest(http.MethodPut, "/", body, auth.RoleDoctor)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(f.doctorID.String())
		if code := httpCode(t, h.UpdateWorkingHours(c)); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}
}

func TestHandler_CreateAndDeleteBlock(t *testing.T) {
	h, e, f := newTestHandler(t)
	body := `{"date":"2024-01-08","start_time":"14:00","end_time":"15:00","reason":"surgery"}`
	req := newRequest(http.MethodPost, "/", body, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.CreateBlock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var b availability.BlockedInterval
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}

	req = newRequest(http.MethodDelete, "/", "", auth.RoleDoctor)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id", "blockId")
	c.SetParamValues(f.doctorID.String(), b.ID.String())
	if err := h.DeleteBlock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(newRequest(http.MethodDelete, "/", "", auth.RoleDoctor), httptest.NewRecorder())
	c.SetParamNames("id", "blockId")
	c.SetParamValues(f.doctorID.String(), b.ID.String())
	if code := httpCode(t, h.DeleteBlock(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", code)
	}
}

func TestHandler_CreateVacation_InvalidRange(t *testing.T) {
	h, e, f := newTestHandler(t)
	body := `{"start_date":"2024-01-20","end_date":"2024-01-10"}`
	c := e.NewContext(newRequest(http.MethodPost, "/", body, auth.RoleDoctor), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if code := httpCode(t, h.CreateVacation(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListVacations_Empty(t *testing.T) {
	h, e, f := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", auth.RolePatient), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())

	if err := h.ListVacations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestHandler_GetAppointment_NotFound(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c := e.NewContext(newRequest(http.MethodGet, "/", "", auth.RolePatient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if code := httpCode(t, h.GetAppointment(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, "09:00", 30, availability.RoleDoctor)
	f.book(t, "10:00", 30, availability.RoleDoctor)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/?doctor_id="+f.doctorID.String()+"&limit=1", "", auth.RoleNurse), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
		Links   struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || !resp.HasMore || !strings.Contains(resp.Links.Next, "offset=1") {
		t.Errorf("unexpected page %+v", resp)
	}

	c = e.NewContext(newRequest(http.MethodGet, "/", "", auth.RoleNurse), httptest.NewRecorder())
	if code := httpCode(t, h.ListAppointments(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 without a filter, got %d", code)
	}
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.bookFor(t, testPatientID, "10:00", 30, availability.RolePatient)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", `{"reason":"travel"}`, auth.RolePatient), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got availability.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != availability.StatusCancelled || got.CancellationReason != "travel" {
		t.Errorf("unexpected cancelled appointment %+v", got)
	}

	// Cancelling twice hits a terminal status.
	c = e.NewContext(newRequest(http.MethodPost, "/", "", auth.RolePatient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if code := httpCode(t, h.CancelAppointment(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_ConfirmTwiceIsConflict(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.book(t, "10:00", 30, availability.RoleDoctor)

	c := e.NewContext(newRequest(http.MethodPost, "/", "", auth.RoleNurse), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if code := httpCode(t, h.ConfirmAppointment(c)); code != http.StatusConflict {
		t.Errorf("expected 409 for confirmed -> confirmed, got %d", code)
	}
}

func TestHandler_Reschedule(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.bookFor(t, testPatientID, "10:00", 30, availability.RoleDoctor)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", `{"date":"2024-01-08","time":"15:00"}`, auth.RolePatient), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.RescheduleAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res RescheduleResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Old.Status != availability.StatusRescheduled || res.New.Time != availability.MustTime("15:00") {
		t.Errorf("unexpected result old=%+v new=%+v", res.Old, res.New)
	}
}

func TestHandler_RescheduleMissingTime(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.bookFor(t, testPatientID, "10:00", 30, availability.RolePatient)

	c := e.NewContext(newRequest(http.MethodPost, "/", `{"date":"2024-01-08"}`, auth.RolePatient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if code := httpCode(t, h.RescheduleAppointment(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_PatientOwnership(t *testing.T) {
	h, e, f := newTestHandler(t)
	mine := f.bookFor(t, testPatientID, "09:00", 30, availability.RolePatient)
	theirs := f.book(t, "10:00", 30, availability.RoleDoctor)

	withID := func(req *http.Request, id uuid.UUID) echo.Context {
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(id.String())
		return c
	}

	t.Run("book for another patient", func(t *testing.T) {
		body := `{"doctor_id":"` + f.doctorID.String() + `","patient_id":"` + uuid.New().String() + `","date":"2024-01-08","time":"11:00"}`
		c := e.NewContext(newRequest(http.MethodPost, "/", body, auth.RolePatient), httptest.NewRecorder())
		if code := httpCode(t, h.BookAppointment(c)); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})

	t.Run("get another patient's appointment", func(t *testing.T) {
		c := withID(newRequest(http.MethodGet, "/", "", auth.RolePatient), theirs.ID)
		if code := httpCode(t, h.GetAppointment(c)); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})

	t.Run("cancel another patient's appointment", func(t *testing.T) {
		c := withID(newRequest(http.MethodPost, "/", `{"reason":"spite"}`, auth.RolePatient), theirs.ID)
		if code := httpCode(t, h.CancelAppointment(c)); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
		a, err := f.svc.GetAppointment(context.Background(), theirs.ID)
		if err != nil {
			t.Fatal(err)
		}
		if a.Status == availability.StatusCancelled {
			t.Error("appointment was cancelled by another patient")
		}
	})

	t.Run("nurse acts for any patient", func(t *testing.T) {
		c := withID(newRequest(http.MethodGet, "/", "", auth.RoleNurse), theirs.ID)
		if err := h.GetAppointment(c); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("list is narrowed to self", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(newRequest(http.MethodGet, "/?doctor_id="+f.doctorID.String(), "", auth.RolePatient), rec)
		if err := h.ListAppointments(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp struct {
			Data  []availability.Appointment `json:"data"`
			Total int                        `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ID != mine.ID {
			t.Errorf("expected only own appointment, got %+v", resp)
		}

		c = e.NewContext(newRequest(http.MethodGet, "/?patient_id="+theirs.PatientID.String(), "", auth.RolePatient), httptest.NewRecorder())
		if code := httpCode(t, h.ListAppointments(c)); code != http.StatusForbidden {
			t.Errorf("expected 403 listing another patient, got %d", code)
		}
	})

	t.Run("subject is not a patient id", func(t *testing.T) {
		req := newRequest(http.MethodGet, "/", "", auth.RolePatient)
		req = req.WithContext(auth.WithIdentity(req.Context(), "user-1", []string{auth.RolePatient}))
		if code := httpCode(t, h.GetAppointment(withID(req, mine.ID))); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})
}

func TestHandler_CancelOpenForDoctor(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, "09:00", 30, availability.RoleDoctor)
	f.book(t, "10:00", 30, availability.RolePatient)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", `{"reason":"retired"}`, auth.RoleAdmin), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctorID.String())
	if err := h.CancelOpenForDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"cancelled":2}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	h, e, f := newTestHandler(t)
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	h.RegisterRoutes(api)
	a := f.book(t, "10:00", 30, availability.RolePatient)

	tests := []struct {
		name, method, path, role string
		want                     int
	}{
		{"patient reads slots", http.MethodGet, "/api/v1/doctors/" + f.doctorID.String() + "/slots?date=2024-01-08", "patient", http.StatusOK},
		{"patient cannot edit hours", http.MethodPut, "/api/v1/doctors/" + f.doctorID.String() + "/working-hours", "patient", http.StatusForbidden},
		{"nurse cannot edit hours", http.MethodPut, "/api/v1/doctors/" + f.doctorID.String() + "/working-hours", "nurse", http.StatusForbidden},
		{"patient cannot confirm", http.MethodPost, "/api/v1/appointments/" + a.ID.String() + "/confirm", "patient", http.StatusForbidden},
		{"nurse confirms", http.MethodPost, "/api/v1/appointments/" + a.ID.String() + "/confirm", "nurse", http.StatusOK},
		{"doctor cannot cancel-open", http.MethodPost, "/api/v1/doctors/" + f.doctorID.String() + "/cancel-open", "doctor", http.StatusForbidden},
		{"unknown role rejected", http.MethodGet, "/api/v1/appointments/" + a.ID.String(), "janitor", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set(auth.DevRoleHeader, tt.role)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
