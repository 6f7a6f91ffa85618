package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"hdr-bloom/bloom"
)

type kernelArgs struct {
	height int
	all    bool
}

func createKernelCommand() *command {
	args := kernelArgs{height: 1080}

	flags := flag.NewFlagSet("kernel", flag.ExitOnError)
	flags.IntVar(&args.height, "height", args.height, "the frame height the kernel is selected for")
	flags.BoolVar(&args.all, "all", args.all, "print the taps of every level, not only level 0")

	return &command{
		Name: "kernel",
		Help: "print the kernel selected for a frame height and its filter taps",
		Run: func(self *command) {
			if self.Flags.NArg() != 0 || args.height <= 0 {
				printCommandUsage(self, "")
			}
			harderr(printKernel(os.Stdout, args.height, args.all))
		},
		Flags: flags,
	}
}

func printKernel(w io.Writer, height int, all bool) error {
	kernels := bloom.DefaultKernels()
	kernel := kernels.Nearest(height)
	layout := bloom.NewLayout(height, height)

	fmt.Fprintf(w, "frame height %d uses the kernel for height %d\n", height, kernel.Height)
	table := tablewriter.NewWriter(w)
	table.Header("level", "c0", "c1", "c2", "c3", "c4", "c5", "tap sum")
	for level := 0; level < bloom.MaxLevels; level++ {
		row := []string{strconv.Itoa(level)}
		for _, weight := range kernel.Weights[level] {
			row = append(row, formatWeight(weight))
		}
		fs := kernel.FilterSet(level, 1, 1)
		row = append(row, formatWeight(fs.WeightSum()))
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	levels := 1
	if all {
		levels = max(layout.Count, 1)
	}
	for level := 0; level < levels; level++ {
		fmt.Fprintf(w, "level %d taps\n", level)
		taps := tablewriter.NewWriter(w)
		taps.Header("dx", "dy", "weight")
		fs := kernel.FilterSet(level, 1, 1)
		for i := range fs {
			dx, dy, weight := fs.Tap(i)
			if err := taps.Append([]string{strconv.Itoa(dx), strconv.Itoa(dy), formatWeight(weight)}); err != nil {
				return err
			}
		}
		if err := taps.Render(); err != nil {
			return err
		}
	}
	return nil
}

func formatWeight(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 5, 32)
}

type levelsArgs struct {
	width  int
	height int
}

func createLevelsCommand() *command {
	args := levelsArgs{width: 1920, height: 1080}

	flags := flag.NewFlagSet("levels", flag.ExitOnError)
	flags.IntVar(&args.width, "width", args.width, "the frame width")
	flags.IntVar(&args.height, "height", args.height, "the frame height")

	return &command{
		Name: "levels",
		Help: "print the pyramid layout for a frame size",
		Run: func(self *command) {
			if self.Flags.NArg() != 0 || args.width < 0 || args.height < 0 {
				printCommandUsage(self, "")
			}
			harderr(printLevels(os.Stdout, args.width, args.height))
		},
		Flags: flags,
	}
}

func printLevels(w io.Writer, width, height int) error {
	layout := bloom.NewLayout(width, height)

	fmt.Fprintf(w, "%dx%d: %d levels, kernel for height %d\n", width, height, layout.Count, layout.KernelHeight)
	table := tablewriter.NewWriter(w)
	table.Header("level", "width", "height", "raw width", "raw height", "tap sum")
	for level := 0; level < layout.Count; level++ {
		mip := layout.Mips[level]
		err := table.Append([]string{
			strconv.Itoa(level),
			strconv.Itoa(mip.Width),
			strconv.Itoa(mip.Height),
			strconv.Itoa(mip.RawWidth()),
			strconv.Itoa(mip.RawHeight()),
			formatWeight(layout.Filters[level].WeightSum()),
		})
		if err != nil {
			return err
		}
	}
	return table.Render()
}
