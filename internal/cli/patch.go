// Copyright 2026 The NSB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"flag"
	"strconv"

	"github.com/google/subcommands"

	"github.com/talismancer/nsb/internal/log"
	"github.com/talismancer/nsb/internal/patchfile"
	"github.com/talismancer/nsb/internal/process"
)

// PatchCommand is the subcommands.Command wrapping process.Patch.
type PatchCommand struct {
	baseFlags
	patchfile string
}

func (*PatchCommand) Name() string     { return "patch" }
func (*PatchCommand) Synopsis() string { return "apply a patch to a running process" }
func (*PatchCommand) Usage() string {
	return "patch -patchfile=<path> <pid>\n"
}

func (c *PatchCommand) SetFlags(fs *flag.FlagSet) {
	c.register(fs)
	fs.StringVar(&c.patchfile, "patchfile", "", "path to the patch description")
}

func (c *PatchCommand) Execute(_ context.Context, fs *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	c.installLogging()

	if c.patchfile == "" || fs.NArg() != 1 {
		log.Errorf("patch: usage: %s", c.Usage())
		return subcommands.ExitUsageError
	}
	pid, err := strconv.ParseInt(fs.Arg(0), 10, 32)
	if err != nil {
		log.Errorf("patch: invalid pid %q: %v", fs.Arg(0), err)
		return subcommands.ExitUsageError
	}

	desc, err := patchfile.Load(c.patchfile)
	if err != nil {
		log.Errorf("patch: %v", err)
		return subcommands.ExitFailure
	}

	dbg := process.NewPtraceDebugger()
	if err := process.Patch(int32(pid), dbg, c.cfg.ToProcessConfig(), desc.Ops(), desc.VMAs()); err != nil {
		log.Errorf("patch: %v", err)
		return subcommands.ExitFailure
	}

	log.Infof("patch: applied %s to pid %d", c.patchfile, pid)
	return subcommands.ExitSuccess
}
