// serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/makodaa/docker-classification-model/envconfig"
	"github.com/makodaa/docker-classification-model/labels"
	"github.com/makodaa/docker-classification-model/logutil"
	"github.com/makodaa/docker-classification-model/model"
	"github.com/makodaa/docker-classification-model/store"
	"github.com/makodaa/docker-classification-model/version"
)

// shutdownTimeout begrenzt das Warten auf laufende Anfragen beim Stoppen
const shutdownTimeout = 10 * time.Second

// Serve laedt Labels, Modell und Datenbank und startet den HTTP-Server.
//
// Startreihenfolge: Labels (Fehler fuehren zu synthetischen Namen), dann
// Modell (Fehler sind fatal), dann Datenbank (best-effort, der Dienst
// startet auch degradiert).
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	ls, err := labels.Read(envconfig.LabelsPath())
	classHint := 0
	if err != nil {
		slog.Warn("labels nicht ladbar, nutze synthetische namen", "path", envconfig.LabelsPath(), "error", err)
		ls = nil
	} else {
		classHint = ls.Len()
		slog.Info("labels geladen", "path", envconfig.LabelsPath(), "count", classHint)
	}

	m, err := model.Load(envconfig.ModelPath(), classHint)
	if err != nil {
		return err
	}
	if ls == nil {
		ls = labels.Synthesize(m.NumClasses())
	}

	st := store.New(envconfig.Database())
	if err := st.Connect(); err != nil {
		slog.Warn("datenbank nicht erreichbar, historie vorerst deaktiviert", "error", err)
	}

	inputH, inputW := envconfig.InputSize()
	s := NewServer(m, ls, st, inputH, inputW)

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	// auf ctrl+c reagieren und laufende Anfragen sauber beenden
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		slog.Info("signal empfangen, beende server", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srvr.Shutdown(ctx); err != nil {
			slog.Warn("shutdown nicht sauber abgeschlossen", "error", err)
		}
		st.Close()
	}()

	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
