// MODUL: main
// ZWECK: Einstiegspunkt des Klassifikationsdienstes
// INPUT: CLI-Argumente
// OUTPUT: Exit-Code
// NEBENEFFEKTE: Startet das CLI
// ABHAENGIGKEITEN: cmd (intern), cobra (extern)

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/makodaa/docker-classification-model/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
