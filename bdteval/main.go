// Command bdteval adds the discriminant of a trained BDT to flat EcalVeto
// trees.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"

	ecalveto "github.com/LiamBrennan-UCSB/LDMX-scripts"
	"github.com/LiamBrennan-UCSB/LDMX-scripts/ledger"
)

var (
	variant  = flag.String("variant", "segmipx", "BDT variant of the model")
	model    = flag.String("model", "bdt_test_0/bdt_test_0_weights.model", "trained model file")
	maxEvt   = flag.Int64("max", -1, "maximum number of events per group (-1: all)")
	scratch  = flag.String("scratch", os.TempDir(), "root of the per-group scratch directories")
	ledgerDB = flag.String("ledger", "", "sqlite run ledger to record the evaluation in")
	pfreq    = flag.Int64("pfreq", 10000, "progress report period, in events")
	prof     = flag.String("prof", "", "write a CPU profile to this directory")

	inputs = ecalveto.NewStringArrayFlags()
	groups = ecalveto.NewStringArrayFlags()
	outs   = ecalveto.NewStringArrayFlags()
)

func init() {
	flag.Var(inputs, "i", "comma separated flat trees or globs of one group (repeatable)")
	flag.Var(groups, "g", "label of one group, the output file stem (repeatable)")
	flag.Var(outs, "o", "output directory of one group (repeatable, or one for all)")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options] -i <files> -g <label> -o <dir> [-i ... -g ... -o ...]

options:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("bdteval: ")
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
	m, err := ecalveto.LoadModel(*model, v)
	if err != nil {
		log.Fatalf("could not load model: %+v", err)
	}
	ann, err := ecalveto.NewAnnotator(v, m, m.NEstimators)
	if err != nil {
		log.Fatalf("could not create annotator: %+v", err)
	}

	var db *ledger.Ledger
	if *ledgerDB != "" {
		db, err = ledger.Open(*ledgerDB)
		if err != nil {
			log.Fatalf("could not open ledger: %+v", err)
		}
		defer db.Close()
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
		fname, n, err := process(v, ann, label, files, out)
		if err != nil {
			log.Fatalf("could not evaluate %s: %+v", label, err)
		}
		log.Printf("%s: %d events written to %s", label, n, fname)

		if db == nil {
			continue
		}
		err = db.RecordEvaluation(&ledger.Evaluation{
			Variant:   v.Name,
			ModelPath: m.Path,
			Group:     label,
			Events:    n,
			OutFile:   fname,
		})
		if err != nil {
			log.Fatalf("could not record evaluation: %+v", err)
		}
	}
}

func process(v *ecalveto.Variant, ann *ecalveto.Annotator, label string, files []string, outDir string) (string, int64, error) {
	scr, err := ecalveto.NewScratch(*scratch, label)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := scr.Cleanup(); err != nil {
			log.Printf("%+v", err)
		}
	}()

	reader, err := ecalveto.NewFlatReader(files, v.TreeSchema())
	if err != nil {
		return "", 0, err
	}
	defer reader.Close()

	tm, err := ecalveto.NewTreeMaker(label+".root", ecalveto.FlatTree, v.EvalSchema(), scr.Dir, outDir)
	if err != nil {
		return "", 0, err
	}
	job := &ecalveto.EvalJob{Annotator: ann, Sink: tm}
	proc := &ecalveto.Process{
		ID:      label,
		Scratch: scr,
		Max:     *maxEvt,
		PFreq:   *pfreq,
	}
	if err := proc.RunFlat(reader, job.Process); err != nil {
		if aerr := tm.Abort(); aerr != nil {
			log.Printf("%+v", aerr)
		}
		return "", 0, err
	}
	fname, err := tm.Close()
	if err != nil {
		return "", 0, err
	}
	return fname, tm.Entries(), nil
}
