package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"voxm2m/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: vox-ctl [flags] status|poll\n\n")
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Daemon control socket")
	source := cli.StringP("source", "S", "", "Limit the command to one source")
	cli.Usage = usage
	cli.Parse()

	if cli.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cmd := cli.Arg(0)
	switch cmd {
	case ipc.CmdStatus, ipc.CmdPoll:
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	reply, err := ipc.SendCommand(*socket, ipc.ControlMessage{Cmd: cmd, Source: *source})
	if err != nil {
		fmt.Fprintln(os.Stderr, "vox-daemon not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}

	if len(reply.Data) == 0 {
		fmt.Println("ok")
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, reply.Data, "", "  "); err != nil {
		os.Stdout.Write(reply.Data)
		fmt.Println()
		return
	}
	fmt.Println(out.String())
}
