package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockdev"
	"github.com/dargueta/easyfs/config"
	"github.com/dargueta/easyfs/efs"
	"github.com/dargueta/easyfs/imagefile"
	"github.com/dargueta/easyfs/vfs"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

// session is a mounted image along with the settings used to mount it.
type session struct {
	config config.Config
	fs     *efs.FileSystem
	root   *vfs.Inode
}

func checkArgs(ctx *cli.Context, min, max int) error {
	n := ctx.NArg()
	if n < min || n > max {
		return fmt.Errorf(
			"%s: expected arguments %s, got %d",
			ctx.Command.Name,
			ctx.Command.ArgsUsage,
			n,
		)
	}
	return nil
}

// loadConfig reads the configuration and applies the global and geometry
// flags on top of it.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return cfg, err
	}

	if ctx.Bool("verbose") {
		cfg.Verbose = true
	}
	if ctx.IsSet("preset") {
		cfg.Preset = ctx.String("preset")
	}
	if ctx.IsSet("blocks") {
		blocks := ctx.Uint("blocks")
		if blocks > math.MaxUint32 {
			return cfg, fmt.Errorf("--blocks: %d is too large", blocks)
		}
		cfg.TotalBlocks = uint32(blocks)
		cfg.Preset = ""
	}
	if ctx.IsSet("inode-bitmap-blocks") {
		blocks := ctx.Uint("inode-bitmap-blocks")
		if blocks > math.MaxUint32 {
			return cfg, fmt.Errorf("--inode-bitmap-blocks: %d is too large", blocks)
		}
		cfg.InodeBitmapBlocks = uint32(blocks)
		cfg.Preset = ""
	}
	return cfg, cfg.Validate()
}

// withFileSystem mounts the image named by the first argument, runs `action`,
// and unmounts the image again.
func withFileSystem(
	minArgs, maxArgs int,
	action func(s *session, ctx *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if err := checkArgs(ctx, minArgs, maxArgs); err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		device, err := blockdev.OpenImage(ctx.Args().First())
		if err != nil {
			return err
		}

		fs, err := efs.Open(device, cfg.FileSystemOptions(os.Stderr)...)
		if err != nil {
			device.Close()
			return err
		}

		var result error
		root, err := vfs.Root(fs)
		if err == nil {
			err = action(&session{config: cfg, fs: fs, root: root}, ctx)
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
		if err = fs.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		return result
	}
}

func formatImage(ctx *cli.Context) error {
	if err := checkArgs(ctx, 1, 1); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	totalBlocks, inodeBitmapBlocks, err := cfg.Geometry()
	if err != nil {
		return err
	}

	device, err := blockdev.CreateImage(ctx.Args().First(), totalBlocks)
	if err != nil {
		return err
	}

	fs, err := efs.Create(device, totalBlocks, inodeBitmapBlocks, cfg.FileSystemOptions(os.Stderr)...)
	if err != nil {
		device.Close()
		return err
	}
	return fs.Close()
}

// writeFile replaces the contents of `name` with everything read from `source`,
// creating the file if needed.
func writeFile(root *vfs.Inode, name string, source io.Reader) (int64, error) {
	file, err := vfs.OpenFile(root, name, easyfs.O_CREATE|easyfs.O_WRONLY)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(file, source)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func packDirectory(s *session, ctx *cli.Context) error {
	directory := ctx.Args().Get(1)
	entries, err := os.ReadDir(directory)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		source, err := os.Open(filepath.Join(directory, entry.Name()))
		if err != nil {
			return err
		}
		n, err := writeFile(s.root, entry.Name(), source)
		source.Close()
		if err != nil {
			return fmt.Errorf("packing %q: %w", entry.Name(), err)
		}
		fmt.Printf("%s: %d bytes\n", entry.Name(), n)
	}
	return nil
}

func listRoot(s *session, ctx *cli.Context) error {
	names, err := s.root.Ls()
	if err != nil {
		return err
	}

	table := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, name := range names {
		inode, err := s.root.Find(name)
		if err != nil {
			return err
		}
		size, err := inode.Size()
		if err != nil {
			return err
		}
		fmt.Fprintf(table, "%d\t%d\t %s\n", inode.InodeID(), size, name)
	}
	return table.Flush()
}

func catFile(s *session, ctx *cli.Context) error {
	file, err := vfs.OpenFile(s.root, ctx.Args().Get(1), easyfs.O_RDONLY)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(os.Stdout, file)
	return err
}

func putFile(s *session, ctx *cli.Context) error {
	source := io.Reader(os.Stdin)
	if ctx.NArg() == 3 {
		hostFile, err := os.Open(ctx.Args().Get(2))
		if err != nil {
			return err
		}
		defer hostFile.Close()
		source = hostFile
	}

	_, err := writeFile(s.root, ctx.Args().Get(1), source)
	return err
}

func linkFile(s *session, ctx *cli.Context) error {
	return vfs.LinkAt(s.root, ctx.Args().Get(1), ctx.Args().Get(2))
}

func removeFile(s *session, ctx *cli.Context) error {
	return vfs.UnlinkAt(s.root, ctx.Args().Get(1))
}

func statImage(s *session, ctx *cli.Context) error {
	if ctx.NArg() == 1 {
		stat, err := s.fs.Stat()
		if err != nil {
			return err
		}
		fmt.Printf("block size:  %d\n", stat.BlockSize)
		fmt.Printf("blocks:      %d\n", stat.TotalBlocks)
		fmt.Printf("inodes:      %d free of %d\n", stat.FreeInodes, stat.TotalInodes)
		fmt.Printf("data blocks: %d free of %d\n", stat.FreeDataBlocks, stat.DataBlocks)
		return nil
	}

	name := ctx.Args().Get(1)
	inode, err := s.root.Find(name)
	if err != nil {
		return err
	}
	stat, err := vfs.StatInode(inode)
	if err != nil {
		return err
	}
	size, err := inode.Size()
	if err != nil {
		return err
	}

	kind := "file"
	if stat.Mode == easyfs.S_IFDIR {
		kind = "directory"
	}
	fmt.Printf("name:  %s\n", name)
	fmt.Printf("inode: %d\n", stat.Ino)
	fmt.Printf("type:  %s\n", kind)
	fmt.Printf("links: %d\n", stat.Nlink)
	fmt.Printf("size:  %d\n", size)
	return nil
}

func snapshotImage(ctx *cli.Context) error {
	if err := checkArgs(ctx, 2, 2); err != nil {
		return err
	}

	device, err := blockdev.OpenImage(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer device.Close()

	output, err := os.Create(ctx.Args().Get(1))
	if err != nil {
		return err
	}

	err = imagefile.Snapshot(device, device.TotalBlocks(), output)
	if closeErr := output.Close(); err == nil {
		err = closeErr
	}
	return err
}

// restoreImage expands a snapshot onto an image. An existing image keeps its
// size; a new one is created with the configured geometry.
func restoreImage(ctx *cli.Context) error {
	if err := checkArgs(ctx, 2, 2); err != nil {
		return err
	}

	input, err := os.Open(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer input.Close()

	imagePath := ctx.Args().Get(1)
	device, err := blockdev.OpenImage(imagePath)
	if err != nil {
		if !errors.Is(err, easyfs.ErrNotFound) {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		totalBlocks, _, err := cfg.Geometry()
		if err != nil {
			return err
		}
		device, err = blockdev.CreateImage(imagePath, totalBlocks)
		if err != nil {
			return err
		}
	}

	err = imagefile.Restore(input, device, device.TotalBlocks())
	if closeErr := device.Close(); err == nil {
		err = closeErr
	}
	return err
}

func listPresets(ctx *cli.Context) error {
	table := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "SLUG\tNAME\tBLOCKS\tSIZE\tNOTES")
	for _, preset := range config.Presets() {
		fmt.Fprintf(
			table,
			"%s\t%s\t%d\t%d KiB\t%s\n",
			preset.Slug,
			preset.Name,
			preset.TotalBlocks,
			preset.SizeBytes()/1024,
			preset.Notes,
		)
	}
	return table.Flush()
}
