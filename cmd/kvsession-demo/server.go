package main

import (
	"fmt"
	"html"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	session "github.com/swfrench/kvsession"
	"golang.org/x/exp/slog"
)

// newHandler returns the demo's routes: a page greeting the signed-in user and
// showing any pending notification, login and logout endpoints that leave a
// notification behind, and Prometheus metrics from reg.
func newHandler(m *session.Middleware, reg *prometheus.Registry) http.Handler {
	app := http.NewServeMux()
	app.HandleFunc("/", handleIndex)
	app.HandleFunc("/login", handleLogin)
	app.HandleFunc("/logout", handleLogout)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", m.Manage(app))
	return mux
}

func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	h := session.FromContext(ctx)
	user, err := h.Session.Get(ctx, "user", "")
	if err != nil {
		internalError(w, "Failed to read session", err)
		return
	}
	flash, err := h.Notifications.Get(ctx, "flash", "")
	if err != nil {
		internalError(w, "Failed to read notification", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s, ok := flash.(string); ok && s != "" {
		fmt.Fprintf(w, "<p><em>%s</em></p>\n", html.EscapeString(s))
	}
	if s, ok := user.(string); ok && s != "" {
		fmt.Fprintf(w, "<p>Signed in as %s. <a href=\"/logout\">Sign out</a></p>\n", html.EscapeString(s))
		return
	}
	fmt.Fprint(w, "<form action=\"/login\" method=\"post\"><input name=\"user\"><button>Sign in</button></form>\n")
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	user := r.PostFormValue("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	h := session.FromContext(ctx)
	if err := h.Session.Set(ctx, "user", user); err != nil {
		internalError(w, "Failed to store session", err)
		return
	}
	if err := h.Notifications.Set(ctx, "flash", "Welcome, "+user+"!"); err != nil {
		internalError(w, "Failed to store notification", err)
		return
	}
	slog.Info("Signed in", "user", user)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h := session.FromContext(ctx)
	if err := h.Session.Delete(ctx, "user"); err != nil {
		internalError(w, "Failed to clear session", err)
		return
	}
	if err := h.Notifications.Set(ctx, "flash", "Signed out."); err != nil {
		internalError(w, "Failed to store notification", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
