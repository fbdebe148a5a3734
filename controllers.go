package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// bindingError renders binding failures as field-level messages; anything
// that is not a validation error gets a single generic 400.
func bindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		c.JSON(http.StatusBadRequest, gin.H{"errors": out})
		return
	}
	jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please include a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "eventcategory":
		return "Invalid category"
	}
	return fe.Field() + " is invalid"
}

// getUserIDFromContext expects AuthMiddleware to have set "user_id" (the hex
// string from the token subject). If not present -> unauthorized.
func getUserIDFromContext(c *gin.Context) (primitive.ObjectID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return primitive.NilObjectID, false
	}
	hex, ok := v.(string)
	if !ok {
		return primitive.NilObjectID, false
	}
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

// sameIdentity is the single place where two user references are compared.
// Both sides normalize to the canonical hex form first, so a reference read
// from a document and an id resolved from a token always compare cleanly.
func sameIdentity(a, b primitive.ObjectID) bool {
	return a.Hex() == b.Hex()
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, candidate := range ids {
		if sameIdentity(candidate, id) {
			return true
		}
	}
	return false
}

// parseEventDate accepts RFC3339 or plain YYYY-MM-DD.
func parseEventDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// populateEvents resolves creator and attendee names for a batch of events
// with a single lookup across the users collection.
func populateEvents(ctx context.Context, events []Event) ([]EventResponse, error) {
	ids := make([]primitive.ObjectID, 0, len(events)*4)
	for i := range events {
		ids = append(ids, events[i].Creator)
		ids = append(ids, events[i].Attendees...)
	}

	names, err := DB.UserNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]EventResponse, 0, len(events))
	for i := range events {
		ev := &events[i]
		resp := EventResponse{
			ID:          ev.ID.Hex(),
			Title:       ev.Title,
			Description: ev.Description,
			Date:        ev.Date,
			Location:    ev.Location,
			Category:    ev.Category,
			Image:       ev.Image,
			Creator:     UserRef{ID: ev.Creator.Hex(), Name: names[ev.Creator]},
			Attendees:   make([]UserRef, 0, len(ev.Attendees)),
			CreatedAt:   ev.CreatedAt,
			UpdatedAt:   ev.UpdatedAt,
		}
		for _, a := range ev.Attendees {
			resp.Attendees = append(resp.Attendees, UserRef{ID: a.Hex(), Name: names[a]})
		}
		out = append(out, resp)
	}
	return out, nil
}

func populateEvent(ctx context.Context, ev *Event) (*EventResponse, error) {
	out, err := populateEvents(ctx, []Event{*ev})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// respondWithEvent is the shared read-after-write step: sub-mutations like
// join and leave re-read the event and answer with the populated shape.
func respondWithEvent(c *gin.Context, id primitive.ObjectID) {
	ctx := c.Request.Context()
	ev, err := DB.FindEventByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	resp, err := populateEvent(ctx, ev)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// eventIDParam parses the :id path segment. A malformed id is reported the
// same as a missing document.
func eventIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		jsonError(c, http.StatusNotFound, "Event not found")
		return primitive.NilObjectID, false
	}
	return oid, true
}

func Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Community Events API"})
}

// -----------------------------
// Events
// -----------------------------

func CreateEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body EventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindingError(c, err)
		return
	}

	eventDate, err := parseEventDate(body.Date)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
		return
	}

	ctx := c.Request.Context()

	ev := &Event{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Date:        eventDate,
		Location:    body.Location,
		Category:    body.Category,
		Image:       body.Image,
		Creator:     userID,
		Attendees:   []primitive.ObjectID{userID}, // creator always attends
	}
	if err := DB.CreateEvent(ctx, ev); err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create event")
		return
	}

	if err := DB.AddCreatedEvent(ctx, userID, ev.ID); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	resp, err := populateEvent(ctx, ev)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func GetEvents(c *gin.Context) {
	f := EventFilter{
		Category: c.Query("category"),
		Location: c.Query("location"),
		Search:   c.Query("search"),
		Limit:    100,
	}
	if f.Category == "all" {
		f.Category = ""
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			jsonError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	if raw := c.Query("date"); raw != "" {
		day, err := parseEventDate(raw)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
			return
		}
		f.Day = &day
	} else {
		// No date filter means upcoming events only.
		now := time.Now()
		f.From = &now
	}

	listEvents(c, f)
}

func GetCreatedEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := time.Now()
	listEvents(c, EventFilter{Creator: &userID, From: &now})
}

func GetAttendingEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Events the caller created show up under /events/created instead.
	now := time.Now()
	listEvents(c, EventFilter{Attendee: &userID, NotCreator: &userID, From: &now})
}

func GetPastEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := time.Now()
	listEvents(c, EventFilter{Attendee: &userID, Until: &now, SortDesc: true})
}

func listEvents(c *gin.Context, f EventFilter) {
	ctx := c.Request.Context()
	events, err := DB.ListEvents(ctx, f)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	resp, err := populateEvents(ctx, events)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func GetEventByID(c *gin.Context) {
	id, ok := eventIDParam(c)
	if !ok {
		return
	}
	respondWithEvent(c, id)
}

func UpdateEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body EventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindingError(c, err)
		return
	}

	eventDate, err := parseEventDate(body.Date)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
		return
	}

	ctx := c.Request.Context()

	ev, err := DB.FindEventByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if !sameIdentity(ev.Creator, userID) {
		jsonError(c, http.StatusUnauthorized, "Not authorized to update this event")
		return
	}

	updated, err := DB.UpdateEvent(ctx, id, Event{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Date:        eventDate,
		Location:    body.Location,
		Category:    body.Category,
		Image:       body.Image,
	})
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	resp, err := populateEvent(ctx, updated)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func DeleteEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ev, err := DB.FindEventByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if !sameIdentity(ev.Creator, userID) {
		jsonError(c, http.StatusUnauthorized, "Not authorized to delete this event")
		return
	}

	if err := DB.DeleteEvent(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	scrubEventRefs(ctx, id)

	c.JSON(http.StatusOK, gin.H{"message": "Event removed"})
}

// scrubEventRefs is the compensating half of an event delete. There is no
// cross-document transaction, so it retries a few times and logs the event id
// on final failure; a later consistency sweep can pick the orphans up.
func scrubEventRefs(ctx context.Context, eventID primitive.ObjectID) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = DB.RemoveEventRefs(ctx, eventID); err == nil {
			return
		}
	}
	log.Printf("⚠️ cascade cleanup failed for event %s, references left dangling: %v", eventID.Hex(), err)
}

// -----------------------------
// Join / Leave
// -----------------------------

func JoinEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ev, err := DB.FindEventByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if containsID(ev.Attendees, userID) {
		jsonError(c, http.StatusBadRequest, "Already attending this event")
		return
	}

	if err := DB.AddAttendee(ctx, id, userID); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	if err := DB.AddJoinedEvent(ctx, userID, id); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	respondWithEvent(c, id)
}

func LeaveEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ev, err := DB.FindEventByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	// Creators delete their events, they never leave them.
	if sameIdentity(ev.Creator, userID) {
		jsonError(c, http.StatusBadRequest, "Creator cannot leave the event")
		return
	}
	if !containsID(ev.Attendees, userID) {
		jsonError(c, http.StatusBadRequest, "Not attending this event")
		return
	}

	if err := DB.RemoveAttendee(ctx, id, userID); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}
	if err := DB.RemoveJoinedEvent(ctx, userID, id); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	respondWithEvent(c, id)
}
