// Command bdtroc draws ROC curves and discriminant distributions from
// evaluated EcalVeto trees.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	ecalveto "github.com/LiamBrennan-UCSB/LDMX-scripts"
)

const cutRef = 0.99

var (
	variant = flag.String("variant", "segmipx", "BDT variant of the evaluation trees")
	flatDir = flag.String("dir", "eval_trees", "directory holding <proc>_<variant>_eval.root files")
	signals = flag.String("signals", "0.001,0.01,0.1,1.0", "comma separated signal processes")
	bkgProc = flag.String("bkg", "bkg", "background process")
	outDir  = flag.String("out", "plots", "output directory")
	isLog   = flag.Bool("log", false, "logarithmic background efficiency axis")
	noZoom  = flag.Bool("nozoom", false, "draw the full efficiency range")
	title   = flag.String("title", "", "plot title")

	bkgEffs = ecalveto.NewFloatArrayFlags(1e-4)
)

func init() {
	flag.Var(bkgEffs, "bkgeff", "background efficiency to report the cut for (repeatable)")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

options:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("bdtroc: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 0 {
		printUsage()
		log.Fatal("Invalid arguments")
	}

	v, err := ecalveto.Lookup(*variant)
	if err != nil {
		log.Fatalf("could not find variant: %+v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("could not create output directory: %+v", err)
	}

	bkg, err := load(v, *bkgProc)
	if err != nil {
		log.Fatalf("could not read background: %+v", err)
	}
	report(bkg)

	var sigs []*ecalveto.DiscHist
	for _, proc := range ecalveto.SplitList(*signals) {
		sig, err := load(v, proc)
		if err != nil {
			log.Fatalf("could not read signal %s: %+v", proc, err)
		}
		report(sig)
		sigs = append(sigs, sig)
	}

	for _, eff := range bkgEffs.Array {
		cut, got := bkg.CutForEfficiency(eff)
		log.Printf("cut for bkg eff %g: %.4f (bkg eff %g)", eff, cut, got)
		for _, sig := range sigs {
			sigEff, _ := sig.EfficiencyForCut(cut)
			log.Printf("  %s eff at that cut: %.4f", sig.Name, sigEff)
		}
	}

	opts := ecalveto.ROCPlotOptions{Title: *title, LogX: *isLog, Zoom: !*noZoom}
	stem := filepath.Join(*outDir, v.Name)
	if err := ecalveto.PlotROC(sigs, bkg, opts, stem+"_roc.png"); err != nil {
		log.Fatalf("%+v", err)
	}
	hists := append([]*ecalveto.DiscHist{bkg}, sigs...)
	if err := ecalveto.PlotDiscriminants(hists, v.DiscName(), stem+"_disc.png"); err != nil {
		log.Fatalf("%+v", err)
	}
}

func load(v *ecalveto.Variant, proc string) (*ecalveto.DiscHist, error) {
	fname := filepath.Join(*flatDir, proc+"_"+v.Name+"_eval.root")
	h := ecalveto.NewDiscHist(proc)
	if err := h.FillFromTrees([]string{fname}, v); err != nil {
		return nil, err
	}
	return h, nil
}

func report(h *ecalveto.DiscHist) {
	eff, edge := h.EfficiencyForCut(cutRef)
	log.Printf("%s: %.0f events, eff = %.6f for disc > %.4f", h.Name, h.Entries(), eff, edge)
}
