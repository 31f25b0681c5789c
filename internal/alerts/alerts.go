package alerts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rockguard/internal/logger"
	"rockguard/internal/metrics"
	"rockguard/internal/models"
	"rockguard/internal/notifications"
)

// IncidentType classifies what an operator alert is about.
type IncidentType string

const (
	IncidentRockfall    IncidentType = "rockfall"
	IncidentLandslide   IncidentType = "landslide"
	IncidentErosion     IncidentType = "erosion"
	IncidentInspection  IncidentType = "inspection"
	IncidentMaintenance IncidentType = "maintenance"
)

func (i IncidentType) IsValid() bool {
	switch i {
	case IncidentRockfall, IncidentLandslide, IncidentErosion, IncidentInspection, IncidentMaintenance:
		return true
	default:
		return false
	}
}

// Request is an operator alert addressed to field responders.
type Request struct {
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Location     string          `json:"location"`
	Severity     models.Severity `json:"severity"`
	TargetUsers  []string        `json:"target_users"`
	IncidentType IncidentType    `json:"incident_type"`
}

// Dispatch is the record of a sent alert.
type Dispatch struct {
	Request
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Status     string             `json:"status"`
	Recipients []models.Responder `json:"recipients"`
}

var (
	ErrMissingFields   = errors.New("alerts: title, message and location are required")
	ErrNoTargets       = errors.New("alerts: select at least one user")
	ErrNoRecipients    = errors.New("alerts: none of the selected users exist")
	ErrInvalidSeverity = errors.New("alerts: invalid severity")
	ErrInvalidIncident = errors.New("alerts: invalid incident type")
)

// DefaultResponders is the field team alerts can be assigned to.
func DefaultResponders() []models.Responder {
	return []models.Responder{
		{ID: "1", Name: "John Smith", Email: "john@rockguard.com", Role: "Field Inspector", Location: "Sector 1-3"},
		{ID: "2", Name: "Sarah Johnson", Email: "sarah@rockguard.com", Role: "Geologist", Location: "Sector 4-6"},
		{ID: "3", Name: "Mike Chen", Email: "mike@rockguard.com", Role: "Safety Officer", Location: "All Sectors"},
		{ID: "4", Name: "Emily Davis", Email: "emily@rockguard.com", Role: "Field Inspector", Location: "Sector 7-9"},
	}
}

// Dispatcher turns operator alerts into notifications, one per recipient.
type Dispatcher struct {
	store      *notifications.Store
	responders []models.Responder
	now        func() time.Time

	mu      sync.Mutex
	history []Dispatch // newest first
}

// NewDispatcher creates a dispatcher over store. A nil responder list
// selects DefaultResponders.
func NewDispatcher(store *notifications.Store, responders []models.Responder) *Dispatcher {
	if responders == nil {
		responders = DefaultResponders()
	}
	return &Dispatcher{
		store:      store,
		responders: responders,
		now:        time.Now,
	}
}

// Responders lists who alerts can be assigned to.
func (d *Dispatcher) Responders() []models.Responder {
	out := make([]models.Responder, len(d.responders))
	copy(out, d.responders)
	return out
}

// Dispatch validates req and adds one notification per known target.
// Unknown target ids are skipped.
func (d *Dispatcher) Dispatch(req Request) (Dispatch, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	req.Location = strings.TrimSpace(req.Location)
	if req.Severity == "" {
		req.Severity = models.SeverityMedium
	}
	if req.IncidentType == "" {
		req.IncidentType = IncidentRockfall
	}

	if err := validate(req); err != nil {
		return Dispatch{}, err
	}

	recipients := d.resolve(req.TargetUsers)
	if len(recipients) == 0 {
		return Dispatch{}, ErrNoRecipients
	}

	typ := models.TypeWarning
	if req.Severity == models.SeverityCritical {
		typ = models.TypeAlert
	}

	for _, r := range recipients {
		d.store.AddFrom(notifications.OriginDispatch, models.Payload{
			Type:     typ,
			Title:    req.Title,
			Message:  fmt.Sprintf("%s\n\nLocation: %s\nAssigned to: %s", req.Message, req.Location, r.Name),
			Location: req.Location,
			Severity: req.Severity,
		})
	}

	sent := Dispatch{
		Request:    req,
		ID:         uuid.NewString(),
		Timestamp:  d.now(),
		Status:     "sent",
		Recipients: recipients,
	}

	d.mu.Lock()
	d.history = append([]Dispatch{sent}, d.history...)
	d.mu.Unlock()

	metrics.AlertsDispatched.WithLabelValues(string(req.Severity)).Inc()
	log := logger.WithComponent("alert_dispatcher")
	log.Info().
		Str("dispatch_id", sent.ID).
		Str("severity", string(req.Severity)).
		Str("incident_type", string(req.IncidentType)).
		Int("recipients", len(recipients)).
		Msg("alert dispatched")

	return sent, nil
}

// History returns sent alerts, newest first.
func (d *Dispatcher) History() []Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Dispatch, len(d.history))
	copy(out, d.history)
	return out
}

func validate(req Request) error {
	if req.Title == "" || req.Message == "" || req.Location == "" {
		return ErrMissingFields
	}
	if len(req.TargetUsers) == 0 {
		return ErrNoTargets
	}
	if !req.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if !req.IncidentType.IsValid() {
		return ErrInvalidIncident
	}
	return nil
}

func (d *Dispatcher) resolve(ids []string) []models.Responder {
	var out []models.Responder
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, r := range d.responders {
			if r.ID == id {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
