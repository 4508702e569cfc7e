// cmd_serve.go - Server-Start
// Hauptfunktionen: RunServer, newServeCmd
package cmd

import (
	"errors"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/makodaa/docker-classification-model/envconfig"
	"github.com/makodaa/docker-classification-model/server"
)

// RunServer - Startet den Klassifikationsserver
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host())
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the classification server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
