package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"memfat/internal/config"
	"memfat/internal/fs"
	"memfat/internal/logging"
	"memfat/internal/mount"
	"memfat/internal/state"

	"github.com/urfave/cli/v2"
)

var (
	logger = logging.GetLogger()
)

// loadMode says how withImage treats the image file.
type loadMode int

const (
	skipLoad     loadMode = iota // start from a formatted file system
	allowEmpty                   // load the image if it has content
	requireImage                 // fail unless the image has content
)

// image bundles a loaded file system with the manager that stores it.
type image struct {
	cfg     *config.Config
	fsys    *fs.FileSystem
	manager *state.Manager
}

func main() {
	app := cli.App{
		Name:  "memfat",
		Usage: "build, inspect and mount memfat images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{{
			Name:      "mkfs",
			Usage:     "write a freshly formatted image",
			ArgsUsage: "IMAGE",
			Action: withImage(1, skipLoad, func(img *image, ctx *cli.Context) error {
				img.fsys.Format()
				if err := img.manager.Save(img.fsys); err != nil {
					return err
				}
				fmt.Printf("formatted %s: %d blocks\n", img.manager.Path(), img.fsys.BlockCount())
				return nil
			}),
		}, {
			Name:      "ls",
			Usage:     "list a directory, or the whole tree with --recursive",
			ArgsUsage: "IMAGE [PATH]",
			Flags: []cli.Flag{&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"R"},
				Usage:   "list every entry below PATH",
			}},
			Action: withImage(1, requireImage, func(img *image, ctx *cli.Context) error {
				path := "/"
				if ctx.NArg() > 1 {
					path = ctx.Args().Get(1)
				}
				if ctx.Bool("recursive") {
					return img.fsys.Walk(path, func(p string, info fs.EntryInfo) error {
						printEntry(p, info)
						return nil
					})
				}
				entries, err := img.fsys.ReadDir(path)
				if err != nil {
					return err
				}
				for _, info := range entries {
					printEntry(info.Name, info)
				}
				return nil
			}),
		}, {
			Name:      "cat",
			Usage:     "print a file to stdout",
			ArgsUsage: "IMAGE PATH",
			Action: withImage(2, requireImage, func(img *image, ctx *cli.Context) error {
				path := ctx.Args().Get(1)
				if err := img.fsys.OpenFile(path); err != nil {
					return err
				}
				data, err := img.fsys.ReadFile(path, -1)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}),
		}, {
			Name:      "put",
			Usage:     "copy a local file (or - for stdin) into the image",
			ArgsUsage: "IMAGE PATH SRC",
			Action: withImage(3, requireImage, func(img *image, ctx *cli.Context) error {
				path, src := ctx.Args().Get(1), ctx.Args().Get(2)
				data, err := readSource(src)
				if err != nil {
					return err
				}
				if err := img.fsys.CreateFile(path); err != nil && !errors.Is(err, fs.ErrAlreadyExists) {
					return err
				}
				if err := img.fsys.OpenFile(path); err != nil {
					return err
				}
				if err := img.fsys.WriteFile(path, data); err != nil {
					return err
				}
				if err := img.fsys.CloseFile(path); err != nil {
					return err
				}
				return img.manager.Save(img.fsys)
			}),
		}, {
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "IMAGE PATH",
			Action: withImage(2, requireImage, func(img *image, ctx *cli.Context) error {
				if err := img.fsys.Mkdir(ctx.Args().Get(1)); err != nil {
					return err
				}
				return img.manager.Save(img.fsys)
			}),
		}, {
			Name:      "rm",
			Aliases:   []string{"delete"},
			Usage:     "remove a file, or an empty directory with --dir",
			ArgsUsage: "IMAGE PATH",
			Flags: []cli.Flag{&cli.BoolFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "remove an empty directory",
			}},
			Action: withImage(2, requireImage, func(img *image, ctx *cli.Context) error {
				path := ctx.Args().Get(1)
				var err error
				if ctx.Bool("dir") {
					err = img.fsys.Rmdir(path)
				} else {
					err = img.fsys.DeleteFile(path)
				}
				if err != nil {
					return err
				}
				return img.manager.Save(img.fsys)
			}),
		}, {
			Name:      "fsck",
			Usage:     "verify the consistency of an image",
			ArgsUsage: "IMAGE",
			Action: withImage(1, requireImage, func(img *image, ctx *cli.Context) error {
				if err := img.fsys.Check(); err != nil {
					return err
				}
				fmt.Printf("%s: clean, %d/%d blocks free\n",
					img.manager.Path(), img.fsys.FreeBlocks(), img.fsys.BlockCount())
				return nil
			}),
		}, {
			Name:      "mount",
			Usage:     "serve an image through FUSE until interrupted",
			ArgsUsage: "IMAGE MOUNTPOINT",
			Action:    withImage(2, allowEmpty, runMount),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// withImage loads the configuration and the image named by the first
// argument before running fn.
func withImage(nargs int, mode loadMode, fn func(*image, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() < nargs {
			return fmt.Errorf("%s: expected %d argument(s), got %d", ctx.Command.Name, nargs, ctx.NArg())
		}

		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		logger.SetLevel(cfg.Level())
		if ctx.Bool("verbose") {
			logger.SetLevel(logging.LevelDebug)
		}

		fsys, err := fs.New(fs.Options{BlockCount: cfg.BlockCount})
		if err != nil {
			return err
		}
		manager, err := state.NewManager(ctx.Args().First(), cfg.StateOptions())
		if err != nil {
			return err
		}
		if mode != skipLoad {
			loaded, err := manager.Load(fsys)
			if err != nil {
				return err
			}
			if mode == requireImage && !loaded {
				return fmt.Errorf("image %s is empty, run mkfs first", manager.Path())
			}
		}

		return fn(&image{cfg: cfg, fsys: fsys, manager: manager}, ctx)
	}
}

func runMount(img *image, ctx *cli.Context) error {
	mountPoint := filepath.Clean(ctx.Args().Get(1))
	if img.cfg.StateOptions().Format == state.FormatImage {
		logger.Warn("Image format %q stores metadata only; file contents are lost on unmount", state.FormatImage)
	}

	m := mount.New(img.fsys, img.manager, img.cfg.UID, img.cfg.GID)
	done, err := m.Mount(mountPoint)
	if err != nil {
		return err
	}

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v", sig)
		if err := m.Unmount(mountPoint); err != nil {
			logger.Error("Unmount error: %v", err)
		}
		<-done
	case err := <-done:
		if err != nil {
			return err
		}
	}

	if err := img.manager.Save(img.fsys); err != nil {
		return err
	}
	logger.Info("Clean shutdown complete")
	return nil
}

func readSource(src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(src)
}

func printEntry(name string, info fs.EntryInfo) {
	if info.IsDir() {
		fmt.Printf("%-4s %8s  %s/\n", info.Kind, "-", name)
		return
	}
	fmt.Printf("%-4s %8d  %s\n", info.Kind, info.Size, name)
}
