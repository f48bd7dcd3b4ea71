// Command treemaker flattens LDMX event files into EcalVeto feature trees,
// optionally split by fiducial category.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/profile"

	ecalveto "github.com/LiamBrennan-UCSB/LDMX-scripts"
)

var (
	variant  = flag.String("variant", "segmipx", "BDT variant whose features are written")
	separate = flag.Bool("separate", false, "split output by fiducial category")
	start    = flag.Int64("start", 0, "first event to process")
	maxEvt   = flag.Int64("max", -1, "maximum number of events per group (-1: all)")
	cells    = flag.String("cells", "", "ECal cell map (cellID x y), required with -separate")
	config   = flag.String("config", "", "YAML configuration overriding the geometry")
	scratch  = flag.String("scratch", os.TempDir(), "root of the per-group scratch directories")
	batch    = flag.Bool("batch", false, "batch mode: keep scratch directories")
	pfreq    = flag.Int64("pfreq", 1000, "progress report period, in events")
	treeName = flag.String("tree", ecalveto.DefaultEventTree, "name of the input event tree")
	prof     = flag.String("prof", "", "write a CPU profile to this directory")

	inputs = ecalveto.NewStringArrayFlags()
	groups = ecalveto.NewStringArrayFlags()
	outs   = ecalveto.NewStringArrayFlags()
)

func init() {
	flag.Var(inputs, "i", "comma separated input files or globs of one group (repeatable)")
	flag.Var(groups, "g", "label of one group (repeatable)")
	flag.Var(outs, "o", "output directory of one group (repeatable, or one for all)")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options] -i <files> -g <label> -o <dir> [-i ... -g ... -o ...]

options:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("treemaker: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if inputs.Len() == 0 || inputs.Len() != groups.Len() {
		printUsage()
		log.Fatalf("need one -g label per -i input group")
	}
	if outs.Len() != 1 && outs.Len() != inputs.Len() {
		printUsage()
		log.Fatalf("need one -o directory, or one per group")
	}

	if *prof != "" {
		defer profile.Start(profile.ProfilePath(*prof)).Stop()
	}

	v, err := ecalveto.Lookup(*variant)
	if err != nil {
		log.Fatalf("could not find variant: %+v", err)
	}
	cfg, err := ecalveto.LoadConfig(*config)
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}

	var cellMap *ecalveto.CellMap
	if *separate {
		cellMap, err = ecalveto.LoadCellMap(*cells)
		if err != nil {
			log.Fatalf("could not load cell map: %+v", err)
		}
		log.Printf("loaded %d cells from %s", cellMap.Len(), *cells)
	}
	router, err := ecalveto.NewRouter(*separate, cellMap, cfg.Geometry.CellRadius)
	if err != nil {
		log.Fatalf("could not create router: %+v", err)
	}

	for i, label := range groups.Array {
		out := outs.Array[0]
		if outs.Len() > 1 {
			out = outs.Array[i]
		}
		files, err := ecalveto.ExpandInputs(ecalveto.SplitList(inputs.Array[i]))
		if err != nil {
			log.Fatalf("could not expand inputs of %s: %+v", label, err)
		}
		if err := process(v, cfg, router, label, files, out); err != nil {
			log.Fatalf("could not process %s: %+v", label, err)
		}
	}
}

func process(v *ecalveto.Variant, cfg ecalveto.Config, router *ecalveto.Router, label string, files []string, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	scr, err := ecalveto.NewScratch(*scratch, label)
	if err != nil {
		return err
	}
	if !*batch {
		defer func() {
			if err := scr.Cleanup(); err != nil {
				log.Printf("%+v", err)
			}
		}()
	}

	reader, err := ecalveto.NewEventReader(*treeName, files, v.TreeSchema())
	if err != nil {
		return err
	}
	defer reader.Close()

	extractor, err := ecalveto.NewExtractor(v, cfg.Geometry)
	if err != nil {
		return err
	}

	makers := make(map[ecalveto.Category]*ecalveto.TreeMaker)
	sinks := make(map[ecalveto.Category]ecalveto.Sink)
	for _, cat := range router.Categories() {
		fname := fmt.Sprintf("%s_%v.root", label, cat)
		tm, err := ecalveto.NewTreeMaker(fname, ecalveto.FlatTree, extractor.Schema(), scr.Dir, outDir)
		if err != nil {
			abort(makers)
			return err
		}
		makers[cat] = tm
		sinks[cat] = tm
	}
	job, err := ecalveto.NewTreeJob(extractor, router, sinks)
	if err != nil {
		abort(makers)
		return err
	}

	proc := &ecalveto.Process{
		ID:      label,
		Scratch: scr,
		Start:   *start,
		Max:     *maxEvt,
		PFreq:   *pfreq,
	}
	log.Printf("running %s over %d files", label, len(files))
	if err := proc.RunEvents(reader, job.Process); err != nil {
		// partial trees never reach the output directory
		abort(makers)
		return err
	}

	counts := job.Counts()
	for _, cat := range router.Categories() {
		fname, err := makers[cat].Close()
		if err != nil {
			abort(makers)
			return err
		}
		log.Printf("%s: %d events in %s", label, counts[cat], filepath.Base(fname))
	}
	log.Printf("%s: processed %d events", label, proc.Processed())
	return nil
}

func abort(makers map[ecalveto.Category]*ecalveto.TreeMaker) {
	for _, tm := range makers {
		if err := tm.Abort(); err != nil {
			log.Printf("%+v", err)
		}
	}
}
