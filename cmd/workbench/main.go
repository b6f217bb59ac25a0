// Command workbench runs, checks and converts dataflow workflow documents.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
)

const version = "0.1.0"

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	meta := Meta{
		Ui:         ui,
		FS:         afero.NewOsFs(),
		ShutdownCh: makeShutdownCh(),
	}

	c := cli.NewCLI("workbench", version)
	c.Args = args
	c.Commands = commands(meta)

	code, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return code
}

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"run": func() (cli.Command, error) {
			return &RunCommand{Meta: meta}, nil
		},
		"validate": func() (cli.Command, error) {
			return &ValidateCommand{Meta: meta}, nil
		},
		"convert": func() (cli.Command, error) {
			return &ConvertCommand{Meta: meta}, nil
		},
		"diff": func() (cli.Command, error) {
			return &DiffCommand{Meta: meta}, nil
		},
	}
}

// makeShutdownCh closes the returned channel on the first interrupt.
func makeShutdownCh() <-chan struct{} {
	ch := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(ch)
	}()
	return ch
}
