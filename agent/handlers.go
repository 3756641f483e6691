package agent

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"drumtrack/infrastructure/argon"
	"drumtrack/infrastructure/cache"
	"drumtrack/label"
	"drumtrack/scanning"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// LoginHandler authenticates an operator by code and PIN and issues a
// login token.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorCode string `json:"operator_code"`
		Pin          string `json:"pin"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OperatorCode = strings.TrimSpace(req.OperatorCode)
	if req.OperatorCode == "" || req.Pin == "" {
		writeError(w, http.StatusBadRequest, "operator code and pin are required")
		return
	}

	operator, err := s.Store.FindOperatorByCode(r.Context(), req.OperatorCode)
	if err != nil {
		s.Log.Error().Err(err).Str("operator_code", req.OperatorCode).Msg("operator lookup failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if operator == nil {
		writeError(w, http.StatusUnauthorized, "invalid operator code or pin")
		return
	}
	ok, err := argon.ComparePinAndHash(req.Pin, operator.PinHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid operator code or pin")
		return
	}

	login := cache.Login{
		Token:        newLoginToken(),
		OperatorID:   operator.ID,
		OperatorName: operator.Name,
		ExpiresAt:    time.Now().Add(loginTTL),
	}
	s.Logins.Add(login)
	s.Controller.SetOperator(operator.ID, operator.Name)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    login.Token,
		Path:     "/",
		MaxAge:   int(loginTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":         login.Token,
		"operator_name": operator.Name,
	})
}

// LogoutHandler drops the login token and clears the controller's
// operator identity.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(CookieName)
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}
	if token != "" {
		s.Logins.Delete(token)
	}
	s.Controller.ClearOperator()
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// RegisterAPIRoutes wires the controller operations for the handheld UI.
func (s *Server) RegisterAPIRoutes(r chi.Router) {
	r.Post("/resync", s.ResyncHandler)
	r.Get("/state", s.StateHandler)
	r.Get("/tasks", s.TasksHandler)
	r.Get("/jobs", s.JobsHandler)
	r.Post("/session/start", s.StartSessionHandler)
	r.Post("/session/task", s.SelectTaskHandler)
	r.Post("/session/job", s.SelectJobHandler)
	r.Post("/session/batch-code", s.BatchCodeHandler)
	r.Post("/session/confirm", s.ConfirmStartHandler)
	r.Post("/session/end", s.EndSessionHandler)
	r.Post("/scan", s.ScanHandler)
	r.Get("/debuglog", s.DebugLogHandler)
	r.Get("/batches/{id}/label.pdf", s.BatchLabelHandler)
	r.Post("/maintenance/reconcile-drums", s.ReconcileDrumsHandler)
}

// ReconcileDrumsHandler re-derives stock-drum statuses from the
// assignment rows, repairing drums left behind by a crash between the
// two production-scan writes.
func (s *Server) ReconcileDrumsHandler(w http.ResponseWriter, r *http.Request) {
	repaired, err := s.Store.ReconcileDrumStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if repaired > 0 {
		s.Log.Warn().Int64("repaired", repaired).Msg("drum statuses reconciled")
	}
	writeJSON(w, http.StatusOK, map[string]int64{"repaired": repaired})
}

func (s *Server) ResyncHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.Resync(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) StateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) TasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Controller.TransportTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Controller.ProductionJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     string `json:"kind"`
		Location string `json:"location"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Controller.StartSession(r.Context(), scanning.SessionKind(req.Kind), req.Location); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) SelectTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LineID int64 `json:"line_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	started, err := s.Controller.SelectTransportTask(r.Context(), req.LineID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started":  started,
		"snapshot": s.Controller.Snapshot(),
	})
}

func (s *Server) SelectJobHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID int64 `json:"job_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Controller.SelectProductionJob(r.Context(), req.JobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) BatchCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Controller.SubmitBatchCode(r.Context(), req.Code); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) ConfirmStartHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.ConfirmStart(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

func (s *Server) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.Controller.EndSession(r.Context())
	if err != nil {
		status := http.StatusConflict
		if report != nil {
			// Completed-write failed; the report is still usable.
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if s.Controller.IsScanning() {
		writeError(w, http.StatusConflict, "a scan is already in flight")
		return
	}
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result := s.Controller.ProcessScan(r.Context(), req.Barcode)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) DebugLogHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Controller.Debug().Entries())
}

func (s *Server) BatchLabelHandler(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	info, err := s.Store.FetchBatchLabel(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	pdfBytes, err := label.RenderBatchLabelPDF(label.BatchLabelData{
		Code:     info.Code,
		PONumber: info.PONumber,
		Supplier: info.Supplier,
		ItemName: info.ItemName,
	}, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+strconv.FormatInt(batchID, 10)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}
