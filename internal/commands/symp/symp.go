// Package symp looks up a symbol in every architecture slice of a Mach-O file and optionally patches it.
package symp

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/symp/internal/config"
	"github.com/blacktop/symp/internal/utils"
	"github.com/blacktop/symp/pkg/disass"
	"github.com/blacktop/symp/pkg/macho"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// ErrNoMatches is returned when no slice contains the symbol. Run has already
// reported it on its output.
var ErrNoMatches = errors.New("no matches found!")

const (
	dumpLen       = 32
	maxInstrBytes = 15
)

type file interface {
	io.ReaderAt
	io.WriterAt
}

// Run resolves conf.Symbol in conf.Path and prints the matches to out, or
// patches them when conf carries a payload.
func Run(conf *config.Config, out io.Writer) error {
	flag := os.O_RDONLY
	if conf.Mode() == config.ModePatch {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(conf.Path, flag, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", conf.Path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", conf.Path)
	}

	return run(conf, f, fi.Size(), out)
}

func run(conf *config.Config, f file, size int64, out io.Writer) error {
	r := io.NewSectionReader(f, 0, size)

	sym := macho.ParseSymbol(conf.Symbol)
	if sym.Warning != "" && !conf.Quiet {
		log.Warn(sym.Warning)
	}
	log.WithFields(log.Fields{
		"symbol": sym.String(),
		"kind":   sym.Kind.String(),
		"archs":  conf.Archs.String(),
		"mode":   conf.Mode().String(),
	}).Debug("Searching")

	slices, err := macho.Slices(r, conf.Archs)
	if err != nil {
		return err
	}

	var locs []macho.Location
	for _, s := range slices {
		loc, err := macho.Resolve(r, s, sym)
		if err != nil {
			if errors.Is(err, macho.ErrNotFound) {
				if !conf.Quiet {
					log.Warnf("symbol not found for arch '%s'!", macho.ArchName(s.CPU))
				}
				continue
			}
			return err
		}
		locs = append(locs, loc)
	}

	if len(locs) == 0 {
		fmt.Fprintln(out, ErrNoMatches.Error())
		return ErrNoMatches
	}

	if conf.Mode() == config.ModePatch {
		return patch(conf, f, r, locs, out)
	}
	return lookup(conf, r, locs, out)
}

func lookup(conf *config.Config, r *io.SectionReader, locs []macho.Location, out io.Writer) error {
	for _, loc := range locs {
		fmt.Fprintln(out, loc.String())
		if err := preview(conf, r, loc, 0, out); err != nil {
			return err
		}
	}
	if len(locs) == 1 {
		fmt.Fprintln(out, "1 match found")
	} else {
		fmt.Fprintf(out, "%d matches found\n", len(locs))
	}
	return nil
}

func patch(conf *config.Config, w io.WriterAt, r *io.SectionReader, locs []macho.Location, out io.Writer) error {
	var patched []string
	var perr error

	for _, loc := range locs {
		payload, err := conf.Payload.For(loc.CPU)
		if err != nil {
			perr = err
			break
		}

		if conf.Interactive {
			if err := preview(conf, r, loc, len(payload), out); err != nil {
				perr = err
				break
			}
			yes, err := confirm(fmt.Sprintf("Patch %s at %s with %s?", macho.ArchName(loc.CPU), loc, humanize.Bytes(uint64(len(payload)))))
			if err != nil {
				perr = err
				break
			}
			if !yes {
				log.Infof("Skipping %s", macho.ArchName(loc.CPU))
				continue
			}
		}

		log.WithFields(log.Fields{
			"arch":     macho.ArchName(loc.CPU),
			"offset":   loc.String(),
			"strategy": string(loc.Strategy),
			"size":     humanize.Bytes(uint64(len(payload))),
		}).Debug("Patching")

		if err := ApplyPatch(w, loc, payload, r.Size()); err != nil {
			perr = err
			break
		}
		patched = append(patched, macho.ArchName(loc.CPU))

		if err := preview(conf, r, loc, len(payload), out); err != nil {
			perr = err
			break
		}
	}

	if len(patched) == 1 {
		fmt.Fprintf(out, "1(%d) match patched\n", len(locs))
	} else {
		if len(patched) > 1 && !conf.Quiet {
			log.Warn("multiple arches used the same patch")
			if !conf.Payload.Builtin() {
				log.Warnf("identical bytes were written to %s", strings.Join(patched, ", "))
			}
		}
		fmt.Fprintf(out, "%d(%d) matches patched\n", len(patched), len(locs))
	}

	return perr
}

// preview prints the hexdump and disassembly requested with --dump and --disass.
func preview(conf *config.Config, r *io.SectionReader, loc macho.Location, mark int, out io.Writer) error {
	if conf.Dump {
		dat, err := readAt(r, loc.FileOffset, max(dumpLen, mark))
		if err != nil {
			return err
		}
		fmt.Fprint(out, utils.HexDump(dat, uint64(loc.FileOffset), mark))
	}
	if conf.Disass > 0 {
		dat, err := readAt(r, loc.FileOffset, conf.Disass*maxInstrBytes)
		if err != nil {
			return err
		}
		instrs, err := disass.Disassemble(loc.CPU, dat, uint64(loc.FileOffset), conf.Disass)
		if err != nil {
			log.Warnf("failed to disassemble %s: %v", macho.ArchName(loc.CPU), err)
			return nil
		}
		var sb strings.Builder
		for _, i := range instrs {
			sb.WriteString(i.String())
			sb.WriteByte('\n')
		}
		fmt.Fprint(out, sb.String())
	}
	return nil
}

// readAt reads up to n bytes at off, stopping at the end of the file.
func readAt(r *io.SectionReader, off int64, n int) ([]byte, error) {
	if rest := r.Size() - off; rest < int64(n) {
		n = int(max(rest, 0))
	}
	dat := make([]byte, n)
	if _, err := r.ReadAt(dat, off); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read %d bytes at %#x", n, off)
	}
	return dat, nil
}
