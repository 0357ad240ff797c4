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

// Package cli wires up the subcommands.Commander: register every command
// against a flag.FlagSet, parse, dispatch.
package cli

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/talismancer/nsb/internal/config"
	"github.com/talismancer/nsb/internal/log"
)

// Main is the CLI entrypoint cmd/nsb calls into.
func Main() subcommands.ExitStatus {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&PatchCommand{}, "")
	subcommands.Register(&CheckCommand{}, "")

	flag.Parse()
	return subcommands.Execute(context.Background())
}

// peekConfigPath scans the raw argument list for -config/--config before the
// subcommands library gets a chance to build its per-command FlagSet. The
// library parses a subcommand's flags only after SetFlags has already
// registered them with their defaults, so a config-file overlay has to be
// applied before that, not after.
func peekConfigPath() string {
	for i, a := range os.Args {
		if a == "-config" || a == "--config" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
		if strings.HasPrefix(a, "-config=") {
			return strings.TrimPrefix(a, "-config=")
		}
		if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

// baseFlags is the config/logging scaffolding every subcommand shares: an
// optional config file overlay plus the knobs in internal/config.
type baseFlags struct {
	configPath string
	cfg        config.Config
}

// register binds b.cfg's fields onto fs. Any TOML overlay is folded into the
// defaults first, so a flag the user actually types always wins.
func (b *baseFlags) register(fs *flag.FlagSet) {
	b.cfg = config.Default()
	if path := peekConfigPath(); path != "" {
		if err := b.cfg.LoadOverlay(path); err != nil {
			log.Warningf("cli: %v", err)
		}
		b.configPath = path
	}
	fs.StringVar(&b.configPath, "config", b.configPath, "optional TOML config file overlaid under the flags below")
	b.cfg.RegisterFlags(fs)
}

func (b *baseFlags) installLogging() {
	log.SetLevelName(b.cfg.LogLevel)
	log.SetJSON(b.cfg.LogJSON)
}
