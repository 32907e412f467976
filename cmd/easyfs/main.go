package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	geometryFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "preset",
			Usage: "size the image using the named preset (see `presets`)",
		},
		&cli.UintFlag{
			Name:  "blocks",
			Usage: "total number of 512-byte blocks in the image",
		},
		&cli.UintFlag{
			Name:  "inode-bitmap-blocks",
			Usage: "number of inode bitmap blocks; each allows 4096 inodes",
		},
	}

	return &cli.App{
		Name:  "easyfs",
		Usage: "Create and manipulate easy-fs disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "read settings from a YAML file",
				EnvVars: []string{"EASYFS_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log filesystem activity to standard error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "mkfs",
				Usage:     "Create or wipe an image and format it",
				ArgsUsage: "IMAGE",
				Flags:     geometryFlags,
				Action:    formatImage,
			},
			{
				Name:      "pack",
				Usage:     "Copy the regular files in a host directory into the image's root",
				ArgsUsage: "IMAGE DIR",
				Action:    withFileSystem(2, 2, packDirectory),
			},
			{
				Name:      "ls",
				Usage:     "List the root directory",
				ArgsUsage: "IMAGE",
				Action:    withFileSystem(1, 1, listRoot),
			},
			{
				Name:      "cat",
				Usage:     "Write a file's contents to standard output",
				ArgsUsage: "IMAGE NAME",
				Action:    withFileSystem(2, 2, catFile),
			},
			{
				Name:      "put",
				Usage:     "Write standard input or a host file into a file, replacing its contents",
				ArgsUsage: "IMAGE NAME [SRC]",
				Action:    withFileSystem(2, 3, putFile),
			},
			{
				Name:      "ln",
				Usage:     "Give an existing file another name",
				ArgsUsage: "IMAGE OLD NEW",
				Action:    withFileSystem(3, 3, linkFile),
			},
			{
				Name:      "rm",
				Aliases:   []string{"unlink"},
				Usage:     "Remove a name, deleting the file if it was the last one",
				ArgsUsage: "IMAGE NAME",
				Action:    withFileSystem(2, 2, removeFile),
			},
			{
				Name:      "stat",
				Usage:     "Show usage of the whole image, or details of one file",
				ArgsUsage: "IMAGE [NAME]",
				Action:    withFileSystem(1, 2, statImage),
			},
			{
				Name:      "snapshot",
				Usage:     "Save a compressed copy of an image",
				ArgsUsage: "IMAGE OUT",
				Action:    snapshotImage,
			},
			{
				Name:      "restore",
				Usage:     "Expand a compressed copy back into an image",
				ArgsUsage: "IN IMAGE",
				Flags:     geometryFlags,
				Action:    restoreImage,
			},
			{
				Name:   "presets",
				Usage:  "List the image size presets",
				Action: listPresets,
			},
		},
	}
}
