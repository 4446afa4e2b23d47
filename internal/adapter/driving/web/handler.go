// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	httphandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/http"
	"github.com/ericfisherdev/cruciverba/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/cruciverba/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/cruciverba/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/cruciverba/internal/application"
	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/ericfisherdev/cruciverba/internal/domain/port/driven"
)

// User-facing messages.
const (
	MsgWrongFormPassword  = "Password errata. Chiedi la password agli organizzatori!"
	MsgWrongAdminPassword = "Password errata"
	MsgDuplicate          = "Questo contributo è già stato registrato"
	MsgThanks             = "Grazie! Il tuo contributo è stato registrato."
	MsgSubmitFailed       = "Si è verificato un errore. Riprova."
	MsgListFailed         = "Errore durante il caricamento dei contributi"
	MsgNotFound           = "Contributo non trovato"
	MsgDeleted            = "Contributo eliminato"
	MsgDeleteFailed       = "Errore durante l'eliminazione"
	MsgExportFailed       = "Errore durante l'esportazione"
	MsgLoggedOut          = "Sei stato disconnesso"
	MsgSecurityError      = "Errore di sicurezza. Riprova."
	MsgTooManyTitle       = "Troppi tentativi"
	MsgTooMany            = "Hai effettuato troppi tentativi. Riprova più tardi."
)

// Form field names.
const (
	fieldAccessPassword = "access_password"
	fieldAdminPassword  = "password"
	fieldHoneypot       = "website"
)

const exportFilename = "cruciverba_bianca.csv"

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	contributions *application.ContributionService
	access        *application.AccessService
	security      *application.SecurityLog
	sessions      *SessionManager
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	contributions *application.ContributionService,
	access *application.AccessService,
	security *application.SecurityLog,
	sessions *SessionManager,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		contributions: contributions,
		access:        access,
		security:      security,
		sessions:      sessions,
		logger:        logger,
	}
}

// Index renders the contributor login form, or the contribution form once
// the contributor gate is held.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)

	if !sess.Has(model.GateContributor) {
		h.render(w, r, sess, http.StatusOK, "Accesso", pages.FormLogin)
		return
	}

	h.render(w, r, sess, http.StatusOK, "Contribuisci", pages.ContributionForm)
}

// Submit handles POST /: a login attempt when access_password is present,
// otherwise a contribution, which requires the contributor gate.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	ip := httphandler.GetClientIP(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if _, ok := r.PostForm[fieldAccessPassword]; ok {
		h.contributorLogin(w, r, sess, ip)
		return
	}

	if !sess.Has(model.GateContributor) {
		h.redirect(w, r, sess, "/")
		return
	}

	c, err := h.contributions.Submit(r.Context(), application.SubmissionInput{
		Word:     r.PostFormValue(application.FieldWord),
		Clue:     r.PostFormValue(application.FieldClue),
		Name:     r.PostFormValue(application.FieldName),
		Honeypot: r.PostFormValue(fieldHoneypot),
	}, ip)

	var verr *application.ValidationError
	switch {
	case err == nil, errors.Is(err, application.ErrHoneypot):
		// A bot gets the same page as a human, minus the stored row.
		sess.AddFlash(flashSuccess, MsgThanks)
		h.renderSuccess(w, r, sess, c.Name)
	case errors.As(err, &verr):
		for _, msg := range verr.Messages() {
			sess.AddFlash(flashError, msg)
		}
		h.render(w, r, sess, http.StatusOK, "Contribuisci", pages.ContributionForm)
	case errors.Is(err, driven.ErrDuplicateContribution):
		sess.AddFlash(flashError, MsgDuplicate)
		h.render(w, r, sess, http.StatusOK, "Contribuisci", pages.ContributionForm)
	default:
		h.logger.Error("failed to store contribution", "error", err, "client_ip", ip)
		sess.AddFlash(flashError, MsgSubmitFailed)
		h.render(w, r, sess, http.StatusInternalServerError, "Contribuisci", pages.ContributionForm)
	}
}

func (h *Handler) contributorLogin(w http.ResponseWriter, r *http.Request, sess *Session, ip string) {
	err := h.access.AttemptLogin(model.GateContributor, r.PostFormValue(fieldAccessPassword), ip)
	if err != nil {
		sess.AddFlash(flashError, MsgWrongFormPassword)
		h.render(w, r, sess, http.StatusOK, "Accesso", pages.FormLogin)
		return
	}

	h.sessions.Grant(sess, model.GateContributor)
	h.redirect(w, r, sess, "/")
}

// Admin renders the admin login form, or the dashboard once the admin gate is held.
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)

	if !sess.Has(model.GateAdmin) {
		h.render(w, r, sess, http.StatusOK, "Amministrazione", pages.AdminLogin)
		return
	}

	contributions, err := h.contributions.List(r.Context())
	status := http.StatusOK
	if err != nil {
		h.logger.Error("failed to list contributions", "error", err)
		sess.AddFlash(flashError, MsgListFailed)
		status = http.StatusInternalServerError
	}

	page := h.page(r, sess, "Pannello Amministratore")
	h.write(w, r, sess, status, page, pages.Dashboard(toDashboardViewModel(page, contributions)))
}

// AdminLogin handles POST /admin.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	ip := httphandler.GetClientIP(r)

	err := h.access.AttemptLogin(model.GateAdmin, r.PostFormValue(fieldAdminPassword), ip)
	if err != nil {
		sess.AddFlash(flashError, MsgWrongAdminPassword)
		h.render(w, r, sess, http.StatusOK, "Amministrazione", pages.AdminLogin)
		return
	}

	h.sessions.Grant(sess, model.GateAdmin)
	h.redirect(w, r, sess, "/admin")
}

// Export streams all contributions as a CSV attachment. Without the admin
// gate the request is refused with 403.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	ip := httphandler.GetClientIP(r)

	if !sess.Has(model.GateAdmin) {
		h.forbidden(w, r, sess, ip)
		return
	}

	var buf bytes.Buffer
	if err := h.contributions.ExportCSV(r.Context(), &buf); err != nil {
		h.logger.Error("csv export failed", "error", err)
		sess.AddFlash(flashError, MsgExportFailed)
		h.redirect(w, r, sess, "/admin")
		return
	}

	h.logger.Info("csv export", "client_ip", ip, "bytes", buf.Len())

	hdr := w.Header()
	hdr.Set("Content-Type", "text/csv; charset=utf-8")
	hdr.Set("Content-Disposition", "attachment; filename="+exportFilename)
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))

	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Delete removes one contribution by ID and redirects back to the dashboard.
// An ID that is not plain decimal digits is 404, a missing admin gate 403,
// a zero ID 400.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	ip := httphandler.GetClientIP(r)

	// ParseUint rejects sign prefixes; bitSize 63 keeps the value inside int64.
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 63)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id := int64(n)

	if !sess.Has(model.GateAdmin) {
		h.forbidden(w, r, sess, ip)
		return
	}

	if id == 0 {
		h.renderError(w, r, sess, http.StatusBadRequest, "Richiesta non valida", "Identificativo del contributo non valido.")
		return
	}

	err = h.contributions.Delete(r.Context(), id, ip)
	switch {
	case err == nil:
		sess.AddFlash(flashSuccess, MsgDeleted)
	case errors.Is(err, driven.ErrContributionNotFound):
		sess.AddFlash(flashError, MsgNotFound)
	default:
		h.logger.Error("failed to delete contribution", "id", id, "error", err)
		sess.AddFlash(flashError, MsgDeleteFailed)
	}

	h.redirect(w, r, sess, "/admin")
}

// Logout drops the contributor gate; the admin gate is kept.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	sess.Revoke(model.GateContributor)
	sess.AddFlash(flashSuccess, MsgLoggedOut)
	h.redirect(w, r, sess, "/")
}

// AdminLogout drops the admin gate; the contributor gate is kept.
func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	sess.Revoke(model.GateAdmin)
	h.redirect(w, r, sess, "/")
}

// TooManyRequests renders the 429 page for throttled requests.
func (h *Handler) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	h.renderError(w, r, sess, http.StatusTooManyRequests, MsgTooManyTitle, MsgTooMany)
}

// CSRFFailure answers requests rejected by the CSRF middleware.
func (h *Handler) CSRFFailure(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	h.security.Event(application.EventCSRFError, httphandler.GetClientIP(r), "Description: "+csrfFailureReason(r))
	sess.AddFlash(flashError, MsgSecurityError)
	h.redirect(w, r, sess, "/")
}

func (h *Handler) forbidden(w http.ResponseWriter, r *http.Request, sess *Session, ip string) {
	h.security.Event(application.EventUnauthorizedAdmin, ip, r.Method+" "+r.URL.Path)
	h.renderError(w, r, sess, http.StatusForbidden, "Accesso negato", "Non hai i permessi per questa operazione.")
}

// page builds the common view model, consuming the queued flashes.
func (h *Handler) page(r *http.Request, sess *Session, title string) vm.PageViewModel {
	return vm.PageViewModel{
		Title:     title,
		Flashes:   sess.PopFlashes(),
		CSRFField: csrfFormField,
		CSRFToken: csrfToken(r),
	}
}

func (h *Handler) render(
	w http.ResponseWriter,
	r *http.Request,
	sess *Session,
	status int,
	title string,
	body func(vm.PageViewModel) templ.Component,
) {
	page := h.page(r, sess, title)
	h.write(w, r, sess, status, page, body(page))
}

func (h *Handler) renderSuccess(w http.ResponseWriter, r *http.Request, sess *Session, name string) {
	page := h.page(r, sess, "Grazie")
	h.write(w, r, sess, http.StatusOK, page, pages.Success(vm.SuccessViewModel{PageViewModel: page, Name: name}))
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, sess *Session, status int, title, message string) {
	page := h.page(r, sess, title)
	h.write(w, r, sess, status, page, pages.Error(vm.ErrorViewModel{PageViewModel: page, Message: message}))
}

// write saves the session and renders body inside the layout. The page is
// rendered to a buffer first so a template error can still become a 500.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, sess *Session, status int, page vm.PageViewModel, body templ.Component) {
	var buf bytes.Buffer
	if err := templates.Layout(page, body).Render(r.Context(), &buf); err != nil {
		h.logger.Error("failed to render page", "title", page.Title, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.Save(w, sess); err != nil {
		h.logger.Error("failed to save session", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, sess *Session, to string) {
	if err := h.sessions.Save(w, sess); err != nil {
		h.logger.Error("failed to save session", "error", err)
	}
	http.Redirect(w, r, to, http.StatusFound)
}
