package main

import (
	"net/rpc"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("storagectl")

func dial(ctx *cli.Context) (*rpc.Client, error) {
	return rpc.DialHTTP("tcp", ctx.String("rpc-url"))
}

func main() {
	app := &cli.App{
		Name:  "storagectl",
		Usage: "Operate the chunked storage engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rpc-url",
				Value: "localhost:8001",
				Usage: "Address of the storaged rpc server",
			},
		},
		Commands: []*cli.Command{
			ingestCmd,
			jobsCmd,
			cancelCmd,
			readCmd,
			objectsCmd,
			deleteCmd,
			drivesCmd,
			scanCmd,
			registerDriveCmd,
			deregisterDriveCmd,
			evacuateCmd,
			infoCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}
