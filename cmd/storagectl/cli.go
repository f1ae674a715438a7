package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/babylonpiles/storaged/core/model"
	storageRPC "github.com/babylonpiles/storaged/rpc/storage"
)

func driveID(ctx *cli.Context) model.DriveID {
	return model.DriveID(ctx.String("drive"))
}

func printDrives(drives []model.DriveInfo) {
	for _, d := range drives {
		status := string(d.Health)
		if d.Draining {
			status += ",draining"
		}
		fmt.Printf("%s  %-24s  %12d total  %12d free  %s\n", d.ID, d.MountPath, d.TotalBytes, d.FreeBytes, status)
	}
}

var ingestCmd = &cli.Command{
	Name:  "ingest",
	Usage: "Start ingesting an object from a source",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Required: true,
			Usage:    "Logical object name to store under",
		},
		&cli.StringFlag{
			Name:     "source",
			Required: true,
			Usage:    "Source descriptor, e.g. https://... or file:/path",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Poll progress until the job reaches a terminal state",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.StartIngestionReply
		args := &storageRPC.StartIngestionArgs{
			Name:             ctx.String("name"),
			SourceDescriptor: ctx.String("source"),
		}
		if err := c.Call("StorageAPI.StartIngestion", args, &reply); err != nil {
			return err
		}

		fmt.Println("job started:", reply.JobID)

		if !ctx.Bool("watch") {
			return nil
		}

		return watchJob(ctx, reply.JobID)
	},
}

func watchJob(ctx *cli.Context, jobID uuid.UUID) error {
	c, err := dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var bar *progressbar.ProgressBar

	for {
		var reply storageRPC.IngestionStatusReply
		args := &storageRPC.IngestionStatusArgs{JobID: jobID}
		if err := c.Call("StorageAPI.GetIngestionStatus", args, &reply); err != nil {
			return err
		}

		job := reply.Job
		if bar == nil && job.ExpectedBytes > 0 {
			bar = progressbar.DefaultBytes(job.ExpectedBytes, job.ObjectName)
		}
		if bar != nil {
			bar.Set64(job.BytesTransferred)
		}

		if job.State.Terminal() {
			if bar != nil {
				bar.Finish()
			}
			fmt.Printf("\njob %s: %s", jobID, job.State)
			if job.FailureReason != "" {
				fmt.Printf(" (%s)", job.FailureReason)
			}
			fmt.Println()
			return nil
		}

		time.Sleep(time.Second)
	}
}

var jobsCmd = &cli.Command{
	Name:  "jobs",
	Usage: "List ingestion jobs",
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.ListIngestionsReply
		if err := c.Call("StorageAPI.ListIngestions", &storageRPC.ListIngestionsArgs{}, &reply); err != nil {
			return err
		}

		for _, job := range reply.Jobs {
			fmt.Printf("%s  %-10s  %12d bytes  %s\n", job.ID, job.State, job.BytesTransferred, job.ObjectName)
		}

		return nil
	},
}

var cancelCmd = &cli.Command{
	Name:  "cancel",
	Usage: "Cancel an in-flight ingestion",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "job",
			Required: true,
			Usage:    "Job id",
		},
	},
	Action: func(ctx *cli.Context) error {
		jobID, err := uuid.Parse(ctx.String("job"))
		if err != nil {
			return err
		}

		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Call("StorageAPI.CancelIngestion", &storageRPC.CancelIngestionArgs{JobID: jobID}, &storageRPC.CancelIngestionReply{})
	},
}

var readCmd = &cli.Command{
	Name:  "read",
	Usage: "Read an object back out of the store",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Required: true,
			Usage:    "Object name",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Output file path, defaults to stdout",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var openReply storageRPC.OpenObjectReply
		if err := c.Call("StorageAPI.OpenObject", &storageRPC.OpenObjectArgs{Name: ctx.String("name")}, &openReply); err != nil {
			return err
		}

		out := os.Stdout
		if outPath := ctx.String("out"); outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		for {
			var readReply storageRPC.ReadObjectReply
			args := &storageRPC.ReadObjectArgs{Handle: openReply.Handle}
			if err := c.Call("StorageAPI.ReadObject", args, &readReply); err != nil {
				c.Call("StorageAPI.CloseObject", &storageRPC.CloseObjectArgs{Handle: openReply.Handle}, &storageRPC.CloseObjectReply{})
				return err
			}

			if _, err := out.Write(readReply.Data); err != nil {
				return err
			}

			if readReply.EOF {
				return nil
			}
		}
	},
}

var objectsCmd = &cli.Command{
	Name:  "objects",
	Usage: "List stored objects",
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.ListObjectsReply
		if err := c.Call("StorageAPI.ListObjects", &storageRPC.ListObjectsArgs{}, &reply); err != nil {
			return err
		}

		for _, object := range reply.Objects {
			fmt.Printf("%-12s  %12d bytes  %3d chunks  %s\n", object.State, object.Size, len(object.Chunks), object.Name)
		}

		return nil
	},
}

var deleteCmd = &cli.Command{
	Name:  "delete",
	Usage: "Delete a stored object",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Required: true,
			Usage:    "Object name",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Call("StorageAPI.DeleteObject", &storageRPC.DeleteObjectArgs{Name: ctx.String("name")}, &storageRPC.DeleteObjectReply{})
	},
}

var drivesCmd = &cli.Command{
	Name:  "drives",
	Usage: "List registered drives",
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.ListDrivesReply
		if err := c.Call("StorageAPI.ListDrives", &storageRPC.ListDrivesArgs{}, &reply); err != nil {
			return err
		}

		printDrives(reply.Drives)
		return nil
	},
}

var scanCmd = &cli.Command{
	Name:  "scan",
	Usage: "Force an immediate capacity and health refresh of all drives",
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.ScanDrivesReply
		if err := c.Call("StorageAPI.ScanDrives", &storageRPC.ScanDrivesArgs{}, &reply); err != nil {
			return err
		}

		printDrives(reply.Drives)
		return nil
	},
}

var registerDriveCmd = &cli.Command{
	Name:  "register-drive",
	Usage: "Register a mounted volume",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "mount-path",
			Required: true,
			Usage:    "Mount path of the volume",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.RegisterDriveReply
		args := &storageRPC.RegisterDriveArgs{MountPath: ctx.String("mount-path")}
		if err := c.Call("StorageAPI.RegisterDrive", args, &reply); err != nil {
			return err
		}

		fmt.Println("registered drive:", reply.DriveID)
		return nil
	},
}

var deregisterDriveCmd = &cli.Command{
	Name:  "deregister-drive",
	Usage: "Deregister an evacuated drive",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "drive",
			Required: true,
			Usage:    "Drive id",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		args := &storageRPC.DeregisterDriveArgs{DriveID: driveID(ctx)}
		return c.Call("StorageAPI.DeregisterDrive", args, &storageRPC.DeregisterDriveReply{})
	},
}

var evacuateCmd = &cli.Command{
	Name:  "evacuate",
	Usage: "Move all chunks off a drive so it can be deregistered",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "drive",
			Required: true,
			Usage:    "Drive id",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.EvacuateDriveReply
		args := &storageRPC.EvacuateDriveArgs{DriveID: driveID(ctx)}
		if err := c.Call("StorageAPI.EvacuateDrive", args, &reply); err != nil {
			return err
		}

		task := reply.Task
		fmt.Printf("evacuation %s: %s, moved %d/%d chunks\n", task.ID, task.State, task.ChunksMoved, task.ChunksTotal)
		return nil
	},
}

var infoCmd = &cli.Command{
	Name:  "info",
	Usage: "Show aggregate storage status",
	Action: func(ctx *cli.Context) error {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var reply storageRPC.StatusReply
		if err := c.Call("StorageAPI.Status", &storageRPC.StatusArgs{}, &reply); err != nil {
			return err
		}

		s := reply.Status
		fmt.Printf("drives:    %d (%d healthy)\n", s.TotalDrives, s.HealthyDrives)
		fmt.Printf("capacity:  %d bytes total, %d free, %d used\n", s.TotalBytes, s.FreeBytes, s.UsedBytes)
		fmt.Printf("objects:   %d (%d chunks)\n", s.TotalObjects, s.TotalChunks)
		fmt.Printf("ingesting: %d active jobs\n", s.ActiveIngestions)
		return nil
	},
}
