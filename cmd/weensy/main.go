// Command weensy boots the simulated kernel and either runs it for a
// bounded number of scheduler steps or inspects its boot-time state,
// mirroring the way runsc/cli wires github.com/google/subcommands
// commands onto a shared config value.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/weensyos/kernel/internal/kconfig"
	"github.com/weensyos/kernel/internal/kernel"
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/process"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&bootCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")
	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// bootCmd runs the kernel for a bounded number of scheduler steps, the
// "boot [image]" form.
type bootCmd struct {
	configPath string
	hz         int
	steps      int
}

func (*bootCmd) Name() string     { return "boot" }
func (*bootCmd) Synopsis() string { return "boot the kernel and run its scheduler" }
func (*bootCmd) Usage() string {
	return "boot [-config file] [-hz N] [-steps N] [image]\n"
}

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration file")
	f.IntVar(&c.hz, "hz", 0, "timer frequency override (0 keeps the config/default value)")
	f.IntVar(&c.steps, "steps", 64, "number of scheduler entries to run before stopping")
}

func (c *bootCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := kconfig.Default()
	if c.configPath != "" {
		loaded, err := kconfig.Load(c.configPath)
		if err != nil {
			kernlog.Log.WithField("path", c.configPath).Errorf("loading config: %v", err)
			return subcommands.ExitFailure
		}
		cfg = loaded
	}
	if c.hz != 0 {
		cfg.HZ = c.hz
	}
	if f.NArg() == 1 {
		cfg.Image = f.Arg(0)
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		kernlog.Log.Errorf("boot: %v", err)
		return subcommands.ExitFailure
	}
	if err := k.Run(c.steps); err != nil {
		kernlog.Log.Errorf("run: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// inspectCmd boots the kernel and prints every non-FREE descriptor's
// state, standing in for a debugger attached to the memory viewer.
type inspectCmd struct {
	configPath string
}

func (*inspectCmd) Name() string     { return "inspect" }
func (*inspectCmd) Synopsis() string { return "boot the kernel and print descriptor state" }
func (*inspectCmd) Usage() string {
	return "inspect [-config file] [image]\n"
}

func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration file")
}

func (c *inspectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := kconfig.Default()
	if c.configPath != "" {
		loaded, err := kconfig.Load(c.configPath)
		if err != nil {
			kernlog.Log.WithField("path", c.configPath).Errorf("loading config: %v", err)
			return subcommands.ExitFailure
		}
		cfg = loaded
	}
	if f.NArg() == 1 {
		cfg.Image = f.Arg(0)
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		kernlog.Log.Errorf("boot: %v", err)
		return subcommands.ExitFailure
	}
	for pid := int32(1); pid < memlayout.NProc; pid++ {
		d := k.Procs.Get(pid)
		if d.State == process.StateFree {
			continue
		}
		fmt.Printf("pid %d: state=%v rip=%#x rsp=%#x\n", d.PID, d.State, d.Regs.RIP, d.Regs.RSP)
	}
	return subcommands.ExitSuccess
}
