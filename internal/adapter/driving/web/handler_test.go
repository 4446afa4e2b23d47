package web_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/ericfisherdev/cruciverba/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/http"
	"github.com/ericfisherdev/cruciverba/internal/adapter/driving/web"
	"github.com/ericfisherdev/cruciverba/internal/application"
	"github.com/ericfisherdev/cruciverba/internal/config"
	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/ericfisherdev/cruciverba/internal/domain/port/driven"
)

const (
	testFormPassword  = "bianca"
	testAdminPassword = "bianca2024"
	testSecret        = "test-secret-key-0123456789abcdef0123456789"
)

// syncBuffer is a bytes.Buffer safe for the server goroutines to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// failingStore wraps a real store and fails selected operations.
type failingStore struct {
	driven.ContributionStore
	listErr   error
	deleteErr error
}

func (f *failingStore) ListAll(ctx context.Context) ([]model.Contribution, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ContributionStore.ListAll(ctx)
}

func (f *failingStore) Delete(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.ContributionStore.Delete(ctx, id)
}

type envOptions struct {
	csrf    bool
	limits  web.RateLimits
	trusted config.TrustedProxies
	wrap    func(driven.ContributionStore) driven.ContributionStore
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	store  driven.ContributionStore
	logs   *syncBuffer
}

// newTestEnv serves the full page stack over a fresh on-disk database. CSRF
// protection is off unless requested so tests can post forms directly.
func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqliteadapter.NewDB(ctx, filepath.Join(t.TempDir(), "cruciverba.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = sqliteadapter.RunMigrations(db.Writer)
	require.NoError(t, err)

	var store driven.ContributionStore = sqliteadapter.NewContributionRepo(db)
	if opts.wrap != nil {
		store = opts.wrap(store)
	}

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	security := application.NewSecurityLog(logger, nil)
	sanitizer := application.NewSanitizer()

	contributions := application.NewContributionService(store, sanitizer, security, nil, logger)
	access := application.NewAccessService(testFormPassword, testAdminPassword, sanitizer, security, nil, logger)
	sessions := web.NewSessionManager(testSecret, 2*time.Hour, false)
	h := web.NewHandler(contributions, access, security, sessions, logger)

	rl := httphandler.NewRateLimiter(security, http.HandlerFunc(h.TooManyRequests))
	mux := http.NewServeMux()
	web.RegisterRoutes(mux, h, rl, opts.limits)

	var handler http.Handler = mux
	if opts.csrf {
		handler = web.NewCSRF(testSecret, time.Hour, false, http.HandlerFunc(h.CSRFFailure)).Middleware(handler)
	}
	handler = httphandler.ApplyMiddleware(handler, logger, opts.trusted)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		store: store,
		logs:  logs,
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (e *testEnv) loginContributor(t *testing.T) {
	t.Helper()
	resp, _ := e.post(t, "/", url.Values{"access_password": {testFormPassword}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func (e *testEnv) loginAdmin(t *testing.T) {
	t.Helper()
	resp, _ := e.post(t, "/admin", url.Values{"password": {testAdminPassword}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/admin", resp.Header.Get("Location"))
}

func (e *testEnv) rows(t *testing.T) []model.Contribution {
	t.Helper()
	rows, err := e.store.ListAll(context.Background())
	require.NoError(t, err)
	return rows
}

func (e *testEnv) seed(t *testing.T, word, clue, name string) int64 {
	t.Helper()
	id, err := e.store.Insert(context.Background(), word, clue, name)
	require.NoError(t, err)
	return id
}

func validSubmission() url.Values {
	return url.Values{
		"parola":        {"GIOIA"},
		"frase_indizio": {"Sentimento che trasmette sempre gioia"},
		"nome":          {"Mario Rossi"},
	}
}

// --- Contributor flow ---

func TestIndex_ShowsLoginWithoutGate(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Password")
	assert.Contains(t, body, "Password di accesso")
	assert.Contains(t, body, `name="access_password"`)
	assert.NotContains(t, body, `name="parola"`)
}

func TestContributorLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.post(t, "/", url.Values{"access_password": {"wrong_password"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, web.MsgWrongFormPassword)
	assert.Contains(t, body, "Password di accesso")
	assert.Contains(t, env.logs.String(), application.EventInvalidFormPassword)
	assert.NotContains(t, env.logs.String(), "wrong_password")

	_, body = env.get(t, "/")
	assert.NotContains(t, body, `name="parola"`, "gate must stay closed")
}

func TestContributorLogin_AdminPasswordDoesNotOpenForm(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	_, body := env.post(t, "/", url.Values{"access_password": {testAdminPassword}})

	assert.Contains(t, body, web.MsgWrongFormPassword)
}

func TestContributorLogin_Success(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	env.loginContributor(t)
	_, body := env.get(t, "/")

	assert.Contains(t, body, `name="parola"`)
	assert.Contains(t, body, `name="frase_indizio"`)
	assert.Contains(t, body, `name="nome"`)
	assert.Contains(t, body, `name="website"`)
}

func TestSubmit_GioiaScenario(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	resp, body := env.post(t, "/", validSubmission())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Mario Rossi")
	assert.Contains(t, body, "Contributo salvato!")
	assert.Contains(t, body, "Aggiungi un'altra parola")
	assert.Contains(t, body, "Finito, disconnetti")
	assert.Contains(t, body, web.MsgThanks)

	rows := env.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "gioia", rows[0].Word)
	assert.Equal(t, "Sentimento che trasmette sempre gioia", rows[0].Clue)
	assert.Equal(t, "Mario Rossi", rows[0].Name)
}

func TestSubmit_NameRequired(t *testing.T) {
	for _, name := range []string{"", "   ", "<b></b>"} {
		t.Run("name "+strconv.Quote(name), func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			env.loginContributor(t)

			form := validSubmission()
			form.Set("nome", name)
			resp, body := env.post(t, "/", form)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, html.EscapeString(application.MsgNameRequired))
			assert.NotContains(t, body, "Contributo salvato!")
			assert.Contains(t, body, `name="nome" required`, "form is shown again")
			assert.Empty(t, env.rows(t))
		})
	}
}

func TestSubmit_MissingNameFieldRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	form := validSubmission()
	form.Del("nome")
	_, body := env.post(t, "/", form)

	assert.Contains(t, body, html.EscapeString(application.MsgNameRequired))
	assert.Empty(t, env.rows(t))
}

func TestSubmit_WithoutGateRedirects(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.post(t, "/", validSubmission())

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Empty(t, env.rows(t))
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	_, _ = env.post(t, "/", validSubmission())

	form := validSubmission()
	form.Set("parola", "gioia")
	resp, body := env.post(t, "/", form)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, web.MsgDuplicate)
	assert.Contains(t, body, `name="parola"`, "form is shown again")
	assert.Len(t, env.rows(t), 1)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		word  string
		clue  string
		nome  string
		want  string
		input string
	}{
		{"digits in word", "Hello123", "Una frase indizio molto lunga", "Test", application.MsgWordCharacters, "Hello123"},
		{"punctuation in word", "Hello!", "Una frase indizio molto lunga", "Test", application.MsgWordCharacters, "Hello!"},
		{"short clue", "TEST", "Short", "Test", application.MsgClueTooShort, "Short"},
		{"missing word", "", "Una frase indizio molto lunga", "Test", application.MsgWordRequired, "Una frase indizio molto lunga"},
		{"missing name", "TEST", "Una frase indizio molto lunga", "", application.MsgNameRequired, "Una frase indizio molto lunga"},
		{"long name", "TEST", "Una frase indizio molto lunga", strings.Repeat("n", 51), application.MsgNameLength, strings.Repeat("n", 51)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			env.loginContributor(t)

			resp, body := env.post(t, "/", url.Values{
				"parola":        {tt.word},
				"frase_indizio": {tt.clue},
				"nome":          {tt.nome},
			})

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, tt.want)
			assert.NotContains(t, body, tt.input, "input is discarded")
			assert.Empty(t, env.rows(t))
		})
	}
}

func TestSubmit_ExactlyTenCharacterClueAccepted(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	resp, body := env.post(t, "/", url.Values{"parola": {"mare"}, "frase_indizio": {"  1234567890  "}, "nome": {"Test"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Contributo salvato!")
	require.Len(t, env.rows(t), 1)
	assert.Equal(t, "1234567890", env.rows(t)[0].Clue)
}

func TestSubmit_MarkupStripped(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	resp, body := env.post(t, "/", url.Values{
		"parola":        {`<script>alert("xss")</script>TEST`},
		"frase_indizio": {"Una frase indizio molto lunga"},
		"nome":          {`<script>alert("xss")</script>TestUser`},
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "<script>alert")
	assert.Contains(t, body, "TestUser")

	rows := env.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "test", rows[0].Word)
	assert.Equal(t, "TestUser", rows[0].Name)
}

func TestSubmit_InjectionStoredAsText(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	clue := "'; DROP TABLE submissions; --"
	resp, _ := env.post(t, "/", url.Values{"parola": {"test"}, "frase_indizio": {clue}, "nome": {"Test"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rows := env.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, clue, rows[0].Clue)
}

func TestSubmit_HoneypotLooksAcceptedButStoresNothing(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	form := validSubmission()
	form.Set("website", "http://spam.com")
	resp, body := env.post(t, "/", form)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Contributo salvato!")
	assert.Empty(t, env.rows(t))
	assert.Contains(t, env.logs.String(), application.EventHoneypotTriggered)
}

func TestLogout_ClearsContributorGateOnly(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)
	env.loginAdmin(t)

	resp, _ := env.get(t, "/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	_, body := env.get(t, "/")
	assert.Contains(t, body, "Password di accesso")
	assert.Contains(t, body, web.MsgLoggedOut)

	_, body = env.get(t, "/admin")
	assert.Contains(t, body, "Pannello Amministratore")
}

func TestAdminLogout_ClearsAdminGateOnly(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)
	env.loginAdmin(t)

	resp, _ := env.get(t, "/admin/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	_, body := env.get(t, "/admin")
	assert.NotContains(t, body, "Pannello Amministratore")
	assert.Contains(t, body, `name="password"`)

	_, body = env.get(t, "/")
	assert.Contains(t, body, `name="parola"`)
}

// --- Admin flow ---

func TestAdmin_ShowsLoginWithoutGate(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/admin")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Password")
	assert.NotContains(t, body, "Pannello Amministratore")
}

func TestAdmin_WrongPassword(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.post(t, "/admin", url.Values{"password": {testFormPassword}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, web.MsgWrongAdminPassword)
	assert.NotContains(t, body, "Pannello Amministratore")
	assert.Contains(t, env.logs.String(), application.EventInvalidAdminPassword)
}

func TestAdmin_DashboardListsNewestFirst(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seed(t, "sole", "Stella al centro del sistema", "Anna")
	env.seed(t, "luna", "Satellite naturale della Terra", "")
	env.loginAdmin(t)

	resp, body := env.get(t, "/admin")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Pannello Amministratore")
	assert.Contains(t, body, "Totale contributi: <strong>2</strong>")
	assert.Contains(t, body, model.AnonymousName)
	assert.Contains(t, body, `action="/admin/delete/1"`)

	luna := strings.Index(body, "luna")
	sole := strings.Index(body, "sole")
	require.NotEqual(t, -1, luna)
	require.NotEqual(t, -1, sole)
	assert.Less(t, luna, sole, "newest contribution first")
}

func TestAdmin_DashboardEscapesStoredText(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seed(t, "prova", `a <b> "c" & d`, `<i>x</i>`)
	env.loginAdmin(t)

	_, body := env.get(t, "/admin")

	assert.Contains(t, body, "a &lt;b&gt; &#34;c&#34; &amp; d")
	assert.NotContains(t, body, "<i>x</i>")
}

func TestExport_RequiresAdminGate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginContributor(t)

	resp, body := env.get(t, "/admin/export")

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"), "refused, not redirected")
	assert.NotContains(t, body, "Parola,Frase Indizio")
	assert.Contains(t, env.logs.String(), application.EventUnauthorizedAdmin)
}

func TestExport_CSV(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seed(t, "amore", "Sentimento, \"grande\"\ne profondo", "Maria")
	env.seed(t, "gioia", "Sentimento che trasmette sempre", "")
	env.loginAdmin(t)

	resp, body := env.get(t, "/admin/export")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=cruciverba_bianca.csv", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	assert.Equal(t, "0", resp.Header.Get("Expires"))

	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Parola", "Frase Indizio", "Nome", "Data"}, records[0])
	assert.Equal(t, []string{"gioia", "Sentimento che trasmette sempre", model.AnonymousName}, records[1][:3])
	assert.Equal(t, []string{"amore", "Sentimento, \"grande\"\ne profondo", "Maria"}, records[2][:3])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, records[1][3])
}

func TestExport_StoreErrorRedirectsWithFlash(t *testing.T) {
	env := newTestEnv(t, envOptions{wrap: func(s driven.ContributionStore) driven.ContributionStore {
		return &failingStore{ContributionStore: s, listErr: errors.New("disk I/O error")}
	}})
	env.loginAdmin(t)

	resp, _ := env.get(t, "/admin/export")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	_, body := env.get(t, "/admin")
	assert.Contains(t, body, html.EscapeString(web.MsgExportFailed))
	assert.NotContains(t, body, "disk I/O error")
}

func TestDelete_RequiresAdminGate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.seed(t, "sole", "Stella al centro del sistema", "")
	env.loginContributor(t)

	resp, _ := env.post(t, "/admin/delete/1", nil)

	assert.Equal(t, int64(1), id)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Len(t, env.rows(t), 1)
}

func TestDelete_KnownID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	keep := env.seed(t, "sole", "Stella al centro del sistema", "")
	drop := env.seed(t, "luna", "Satellite naturale della Terra", "")
	env.loginAdmin(t)

	resp, _ := env.post(t, "/admin/delete/"+itoa(drop), nil)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	rows := env.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, keep, rows[0].ID)

	_, body := env.get(t, "/admin")
	assert.Contains(t, body, web.MsgDeleted)
}

func TestDelete_UnknownID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seed(t, "sole", "Stella al centro del sistema", "")
	env.loginAdmin(t)

	resp, _ := env.post(t, "/admin/delete/999", nil)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))
	assert.Len(t, env.rows(t), 1)

	_, body := env.get(t, "/admin")
	assert.Contains(t, body, web.MsgNotFound)
}

func TestDelete_MalformedID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.loginAdmin(t)

	resp, _ := env.post(t, "/admin/delete/abc", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.post(t, "/admin/delete/0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, id := range []string{"-3", "+1", " 1", "0x1", "99999999999999999999"} {
		resp, _ = env.post(t, "/admin/delete/"+url.PathEscape(id), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "id %q", id)
	}
}

func TestDelete_SignedIDDoesNotDeleteRow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.seed(t, "sole", "Stella al centro del sistema", "Anna")
	env.loginAdmin(t)

	resp, _ := env.post(t, "/admin/delete/+"+itoa(id), nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, env.rows(t), 1)
}

func TestDelete_StoreErrorIsGeneric(t *testing.T) {
	env := newTestEnv(t, envOptions{wrap: func(s driven.ContributionStore) driven.ContributionStore {
		return &failingStore{ContributionStore: s, deleteErr: errors.New("database is locked")}
	}})
	id := env.seed(t, "sole", "Stella al centro del sistema", "")
	env.loginAdmin(t)

	resp, _ := env.post(t, "/admin/delete/"+itoa(id), nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	_, body := env.get(t, "/admin")
	assert.Contains(t, body, html.EscapeString(web.MsgDeleteFailed))
	assert.NotContains(t, body, "database is locked")
	assert.Len(t, env.rows(t), 1)
}

// --- Cross-cutting ---

func TestUnknownPathIsNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.get(t, "/nonexistent")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSecurityHeadersOnPages(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, path := range []string{"/", "/admin", "/logout"} {
		resp, _ := env.get(t, path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"), path)
		assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"), path)
	}
}

func TestStaticStylesheet(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/static/css/style.css")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Contains(t, body, ".flash-error")
}

func TestRateLimit_TooManyRequests(t *testing.T) {
	env := newTestEnv(t, envOptions{limits: web.RateLimits{
		Form: config.RateLimits{{Count: 2, Period: time.Minute}},
	}})

	for range 2 {
		resp, _ := env.get(t, "/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, web.MsgTooManyTitle)
	assert.Contains(t, body, html.EscapeString(web.MsgTooMany))
	assert.Contains(t, env.logs.String(), application.EventRateLimitExceeded)

	// Other routes have their own budget.
	resp, _ = env.get(t, "/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit_GlobalBudgetSpansRoutes(t *testing.T) {
	env := newTestEnv(t, envOptions{limits: web.RateLimits{
		Global: config.RateLimits{{Count: 3, Period: time.Hour}},
	}})

	env.get(t, "/")
	env.get(t, "/admin")
	env.get(t, "/logout")

	resp, _ := env.get(t, "/admin")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = env.get(t, "/static/css/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "static assets are not throttled")
}

func TestRateLimit_SpoofedForwardingDoesNotBypass(t *testing.T) {
	env := newTestEnv(t, envOptions{limits: web.RateLimits{
		Admin: config.RateLimits{{Count: 3, Period: time.Minute}},
	}})

	throttled := 0
	for i := range 50 {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/admin",
			strings.NewReader(url.Values{"password": {"wrong"}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
		req.Header.Set("X-Real-IP", "198.51.100."+strconv.Itoa(i))

		resp, err := env.client.Do(req)
		require.NoError(t, err)
		readBody(t, resp)
		if resp.StatusCode == http.StatusTooManyRequests {
			throttled++
		}
	}

	assert.Equal(t, 47, throttled)
	assert.NotContains(t, env.logs.String(), "203.0.113.")
	assert.NotContains(t, env.logs.String(), "198.51.100.")
}

func TestRateLimit_TrustedProxyForwardsClientAddress(t *testing.T) {
	var trusted config.TrustedProxies
	require.NoError(t, trusted.Decode("127.0.0.1,::1"))
	env := newTestEnv(t, envOptions{
		trusted: trusted,
		limits: web.RateLimits{
			Admin: config.RateLimits{{Count: 1, Period: time.Minute}},
		},
	})

	get := func(client string) int {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/admin", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", client)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		readBody(t, resp)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("203.0.113.1"))
	assert.Equal(t, http.StatusOK, get("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, get("203.0.113.1"))
	assert.Contains(t, env.logs.String(), "203.0.113.1")
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func TestCSRF_MissingTokenRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{csrf: true})

	_, body := env.get(t, "/")
	match := csrfInput.FindStringSubmatch(body)
	require.Len(t, match, 2, "login form carries a CSRF token")

	resp, _ := env.post(t, "/", url.Values{"access_password": {testFormPassword}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Contains(t, env.logs.String(), application.EventCSRFError)

	_, body = env.get(t, "/")
	assert.Contains(t, body, web.MsgSecurityError)
	assert.NotContains(t, body, `name="parola"`, "rejected login must not open the gate")
}

func TestCSRF_ValidTokenAccepted(t *testing.T) {
	env := newTestEnv(t, envOptions{csrf: true})

	_, body := env.get(t, "/")
	match := csrfInput.FindStringSubmatch(body)
	require.Len(t, match, 2)

	resp, _ := env.post(t, "/", url.Values{
		"access_password": {testFormPassword},
		"csrf_token":      {html.UnescapeString(match[1])},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	_, body = env.get(t, "/")
	assert.Contains(t, body, `name="parola"`)

	match = csrfInput.FindStringSubmatch(body)
	require.Len(t, match, 2)
	form := validSubmission()
	form.Set("csrf_token", html.UnescapeString(match[1]))

	resp, body = env.post(t, "/", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Mario Rossi")
	assert.Len(t, env.rows(t), 1)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
