package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/embedos/fat32"
	"github.com/embedos/fat32/blockdev"
)

// fat32ctl is a small explorer for raw FAT32 image files: ls, cat, stat and
// label, each taking the image path as the first argument.
func main() {
	app := &cli.App{
		Name:  "fat32ctl",
		Usage: "inspect a FAT32 disk image",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skip-checks", Usage: "mount without validating the BPB/FSInfo signatures"},
		},
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list a directory's contents",
				ArgsUsage: "<image> [path]",
				Action:    withFs(runLs),
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents to stdout",
				ArgsUsage: "<image> <path>",
				Action:    withFs(runCat),
			},
			{
				Name:      "stat",
				Usage:     "print a file's or directory's metadata",
				ArgsUsage: "<image> <path>",
				Action:    withFs(runStat),
			},
			{
				Name:      "label",
				Usage:     "print the volume label",
				ArgsUsage: "<image>",
				Action:    withFs(runLabel),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withFs opens the image named by the command's first argument, mounts it
// and hands the rest of the arguments plus the mounted filesystem to fn.
func withFs(fn func(c *cli.Context, fs *fat32.Fs) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		imagePath := c.Args().Get(0)
		if imagePath == "" {
			return cli.Exit("please provide the path to a FAT32 image", 1)
		}

		device, err := blockdev.OpenFile(imagePath, os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		defer device.Close()

		var fs *fat32.Fs
		if c.Bool("skip-checks") {
			fs, err = fat32.NewSkipChecks(device)
		} else {
			fs, err = fat32.New(device)
		}
		if err != nil {
			return err
		}

		return fn(c, fs)
	}
}

func runLs(c *cli.Context, fs *fat32.Fs) error {
	path := c.Args().Get(1)
	if path == "" {
		path = "/"
	}

	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := f.Readdir(0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "-"
		if e.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %10d %s %s\n", kind, e.Size(), e.ModTime().Format("2006-01-02 15:04:05"), e.Name())
	}
	return nil
}

func runCat(c *cli.Context, fs *fat32.Fs) error {
	path := c.Args().Get(1)
	if path == "" {
		return cli.Exit("please provide a file path", 1)
	}

	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return nil
}

func runStat(c *cli.Context, fs *fat32.Fs) error {
	path := c.Args().Get(1)
	if path == "" {
		path = "/"
	}

	info, err := fs.Stat(path)
	if err != nil {
		return err
	}
	fmt.Printf("name:    %s\n", info.Name())
	fmt.Printf("size:    %d\n", info.Size())
	fmt.Printf("dir:     %v\n", info.IsDir())
	fmt.Printf("mode:    %s\n", info.Mode())
	fmt.Printf("modtime: %s\n", info.ModTime())
	return nil
}

func runLabel(c *cli.Context, fs *fat32.Fs) error {
	label, ok, err := fs.Label()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("(no volume label)")
		return nil
	}
	fmt.Println(label)
	return nil
}
