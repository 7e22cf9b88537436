package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// AlertSeverity bands an Alert for webhook routing, derived from the
// OpportunityReport recommended-action bands rather than an independent
// scale.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityNotable  AlertSeverity = "notable"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is emitted whenever a Signal reaches LOCK_IN.
type Alert struct {
	AlertID      string               `json:"alert_id"`
	EntityID     string               `json:"entity_id"`
	HypothesisID string               `json:"hypothesis_id"`
	Category     model.SignalCategory `json:"category"`
	Severity     AlertSeverity        `json:"severity"`
	Description  string               `json:"description"`
	Confidence   float64              `json:"confidence"`
	CreatedAt    time.Time            `json:"created_at"`
}

const maxRecentAlerts = 200

// AlertManager fans alerts out to registered webhooks and keeps a capped
// recent-alert ring buffer.
type AlertManager struct {
	mu            sync.Mutex
	webhooks      map[string]string // label -> URL
	recentAlerts  []Alert
	broadcastFunc func(Alert)
	httpClient    *http.Client
}

// NewAlertManager constructs an AlertManager. broadcastFunc may be nil.
func NewAlertManager(broadcastFunc func(Alert)) *AlertManager {
	return &AlertManager{
		webhooks:      make(map[string]string),
		broadcastFunc: broadcastFunc,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterWebhook adds a webhook endpoint under a label.
func (a *AlertManager) RegisterWebhook(label, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.webhooks[label] = url
}

// RemoveWebhook removes a previously registered webhook.
func (a *AlertManager) RemoveWebhook(label string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.webhooks, label)
}

// GetRecentAlerts returns a snapshot of the recent-alert buffer.
func (a *AlertManager) GetRecentAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.recentAlerts))
	copy(out, a.recentAlerts)
	return out
}

// EmitLockIn builds and dispatches an Alert for a LOCK_IN signal.
func (a *AlertManager) EmitLockIn(entity model.Entity, h model.Hypothesis, sig model.Signal) {
	severity := SeverityNotable
	if model.RecommendAction(sig.PostConfidence) == model.ActionImmediate {
		severity = SeverityCritical
	}
	alert := Alert{
		AlertID:      model.NewID("alert"),
		EntityID:     entity.EntityID,
		HypothesisID: h.HypothesisID,
		Category:     h.Category,
		Severity:     severity,
		Description:  fmt.Sprintf("%s locked in at confidence %.2f: %s", entity.Name, sig.PostConfidence, h.Statement),
		Confidence:   sig.PostConfidence,
		CreatedAt:    sig.CreatedAt,
	}
	a.emit(alert)
}

func (a *AlertManager) emit(alert Alert) {
	a.mu.Lock()
	a.recentAlerts = append(a.recentAlerts, alert)
	if len(a.recentAlerts) > maxRecentAlerts {
		a.recentAlerts = a.recentAlerts[len(a.recentAlerts)-maxRecentAlerts:]
	}
	webhooks := make(map[string]string, len(a.webhooks))
	for k, v := range a.webhooks {
		webhooks[k] = v
	}
	a.mu.Unlock()

	if a.broadcastFunc != nil {
		a.broadcastFunc(alert)
	}
	for label, url := range webhooks {
		go a.sendWebhook(label, url, alert)
	}
}

func (a *AlertManager) sendWebhook(label, url string, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[AlertManager] failed to marshal alert for webhook %s: %v", label, err)
		return
	}
	resp, err := a.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[AlertManager] webhook %s delivery failed: %v", label, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[AlertManager] webhook %s returned status %d", label, resp.StatusCode)
	}
}
