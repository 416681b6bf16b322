package httpiface

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"oracle-fhir/internal/domain/fhir"
	"oracle-fhir/internal/infrastructure/cerner"
	"oracle-fhir/internal/pkg/httpx"
)

// patientSearchParams are the Patient search filters the open sandbox
// accepts; it rejects unconstrained searches, so at least one is required.
var patientSearchParams = []string{"family", "given", "name", "gender", "birthdate"}

// SandboxHandler proxies the Oracle Health open sandbox, which serves demo
// data without authentication. Responses pair flattened summaries with the
// raw FHIR bundle.
type SandboxHandler struct {
	Client *cerner.Client
	now    func() time.Time
}

func NewSandboxHandler(client *cerner.Client) *SandboxHandler {
	return &SandboxHandler{Client: client, now: time.Now}
}

func (h *SandboxHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/sandbox")
	g.GET("/patients", h.SearchPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/patients/:id/coverage", h.PatientCoverage)
	g.GET("/patients/:id/profile", h.PatientProfile)
	g.GET("/observations", h.Observations)
	g.GET("/medications", h.Medications)
}

func (h *SandboxHandler) SearchPatients(c echo.Context) error {
	query := url.Values{}
	for _, p := range patientSearchParams {
		if v := c.QueryParam(p); v != "" {
			query.Set(p, v)
		}
	}
	if len(query) == 0 {
		return httpx.JSONError(c, http.StatusBadRequest, "search_parameters_required", map[string]any{
			"available_parameters": patientSearchParams,
			"examples":             []string{"?family=Smart", "?given=Nancy", "?gender=female", "?birthdate=1990-01-01"},
		})
	}
	query.Set("_count", countParam(c, 20))

	ctx := c.Request().Context()
	body, err := h.Client.OpenResource(ctx, "Patient", query)
	if err != nil {
		c.Logger().Errorf("sandbox patient search failed: %v", err)
		return upstreamError(c, "sandbox_search_failed", err)
	}

	bundle, err := fhir.ParseBundle(body)
	if err != nil {
		return httpx.JSONError(c, http.StatusBadGateway, "unexpected_fhir_response",
			map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"search":   flattenQuery(query),
		"total":    bundle.Total,
		"patients": fhir.PatientSummaries(bundle, h.now()),
		"bundle":   json.RawMessage(body),
	})
}

func (h *SandboxHandler) GetPatient(c echo.Context) error {
	id := c.Param("id")
	body, err := h.Client.OpenResource(c.Request().Context(), "Patient/"+id, nil)
	if err != nil {
		return upstreamError(c, "sandbox_patient_lookup_failed", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patient_id": id,
		"patient":    json.RawMessage(body),
	})
}

func (h *SandboxHandler) PatientCoverage(c echo.Context) error {
	id := c.Param("id")
	body, err := h.Client.OpenResource(c.Request().Context(), "Coverage",
		url.Values{"patient": {"Patient/" + id}})
	if err != nil {
		return upstreamError(c, "sandbox_coverage_lookup_failed", err)
	}

	bundle, err := fhir.ParseBundle(body)
	if err != nil {
		return httpx.JSONError(c, http.StatusBadGateway, "unexpected_fhir_response",
			map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patient_id": id,
		"total":      bundle.Total,
		"coverage":   fhir.CoverageSummaries(bundle),
		"bundle":     json.RawMessage(body),
	})
}

// PatientProfile combines demographics with the patient's coverage. Missing
// coverage degrades to an empty list; it never fails the profile.
func (h *SandboxHandler) PatientProfile(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	body, err := h.Client.OpenResource(ctx, "Patient/"+id, nil)
	if err != nil {
		return upstreamError(c, "sandbox_patient_lookup_failed", err)
	}
	var patient map[string]any
	if err := json.Unmarshal(body, &patient); err != nil {
		return httpx.JSONError(c, http.StatusBadGateway, "unexpected_fhir_response",
			map[string]string{"error": err.Error()})
	}

	var coverage []fhir.CoverageSummary
	if covBody, err := h.Client.OpenResource(ctx, "Coverage", url.Values{"patient": {"Patient/" + id}}); err == nil {
		if bundle, err := fhir.ParseBundle(covBody); err == nil {
			coverage = fhir.CoverageSummaries(bundle)
		}
	} else {
		c.Logger().Warnf("coverage lookup for patient %s failed: %v", id, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"patient_id":   id,
		"patient":      fhir.SummarizePatient(patient, h.now()),
		"coverage":     coverage,
		"has_coverage": len(coverage) > 0,
		"raw_patient":  json.RawMessage(body),
	})
}

func (h *SandboxHandler) Observations(c echo.Context) error {
	query := url.Values{"_count": {countParam(c, 20)}}
	if patient := c.QueryParam("patient"); patient != "" {
		query.Set("patient", patient)
	}

	body, err := h.Client.OpenResource(c.Request().Context(), "Observation", query)
	if err != nil {
		return upstreamError(c, "sandbox_observations_failed", err)
	}
	bundle, err := fhir.ParseBundle(body)
	if err != nil {
		return httpx.JSONError(c, http.StatusBadGateway, "unexpected_fhir_response",
			map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":        bundle.Total,
		"observations": fhir.ObservationSummaries(bundle),
		"bundle":       json.RawMessage(body),
	})
}

func (h *SandboxHandler) Medications(c echo.Context) error {
	query := url.Values{"_count": {countParam(c, 15)}}
	if patient := c.QueryParam("patient"); patient != "" {
		query.Set("patient", patient)
	}

	body, err := h.Client.OpenResource(c.Request().Context(), "MedicationRequest", query)
	if err != nil {
		return upstreamError(c, "sandbox_medications_failed", err)
	}
	bundle, err := fhir.ParseBundle(body)
	if err != nil {
		return httpx.JSONError(c, http.StatusBadGateway, "unexpected_fhir_response",
			map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":       bundle.Total,
		"medications": fhir.MedicationSummaries(bundle),
		"bundle":      json.RawMessage(body),
	})
}

func countParam(c echo.Context, def int) string {
	if raw := c.QueryParam("_count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			return strconv.Itoa(n)
		}
	}
	return strconv.Itoa(def)
}

func flattenQuery(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}
