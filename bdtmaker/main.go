// Command bdtmaker trains an ECal veto BDT on flat signal and background
// trees.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/profile"

	ecalveto "github.com/LiamBrennan-UCSB/LDMX-scripts"
	"github.com/LiamBrennan-UCSB/LDMX-scripts/ledger"
)

var (
	variant   = flag.String("variant", "segmipx", "BDT variant to train")
	sigFiles  = flag.String("s", "./bdt_0/sig_train.root", "comma separated signal files or globs")
	bkgFiles  = flag.String("b", "./bdt_0/bkg_train.root", "comma separated background files or globs")
	outName   = flag.String("o", "bdt_test", "output name prefix")
	seed      = flag.Uint64("seed", 2, "shuffling random seed")
	maxEvt    = flag.Int("max_evt", 1500000, "maximum number of events to load per sample")
	trainFrac = flag.Float64("train_frac", 0.8, "fraction of events used for training")
	eta       = flag.Float64("eta", ecalveto.DefaultParams().Eta, "learning rate")
	nTrees    = flag.Int("tree_number", ecalveto.DefaultParams().NumRounds, "number of boosting rounds")
	depth     = flag.Int("depth", ecalveto.DefaultParams().MaxDepth, "maximum tree depth")
	xgbBinary = flag.String("xgboost", "xgboost", "xgboost command line program")
	config    = flag.String("config", "", "YAML configuration with booster parameters")
	ledgerDB  = flag.String("ledger", "", "sqlite run ledger to record the training in")
	verbose   = flag.Bool("v", false, "show xgboost output")
	prof      = flag.String("prof", "", "write a CPU profile to this directory")
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

options:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("bdtmaker: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 0 {
		printUsage()
		log.Fatal("Invalid arguments")
	}

	if *prof != "" {
		defer profile.Start(profile.ProfilePath(*prof)).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("%+v", err)
	}
}

// params returns the configured booster parameters, explicit flags taking
// precedence over the configuration file.
func params() (ecalveto.Params, error) {
	cfg, err := ecalveto.LoadConfig(*config)
	if err != nil {
		return ecalveto.Params{}, err
	}
	p := cfg.Booster
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "eta":
			p.Eta = *eta
		case "tree_number":
			p.NumRounds = *nTrees
		case "depth":
			p.MaxDepth = *depth
		}
	})
	return p, p.Validate()
}

func run(ctx context.Context) error {
	v, err := ecalveto.Lookup(*variant)
	if err != nil {
		return err
	}
	p, err := params()
	if err != nil {
		return fmt.Errorf("could not configure booster: %w", err)
	}

	dir, n, err := ecalveto.NextRunDir(*outName)
	if err != nil {
		return err
	}
	stem := fmt.Sprintf("%s_%d", filepath.Base(*outName), n)

	log.Printf("Random seed is = %d", *seed)
	log.Printf("You set max_evt = %d", *maxEvt)
	log.Printf("You set tree number = %d", p.NumRounds)
	log.Printf("You set max tree depth = %d", p.MaxDepth)
	log.Printf("You set eta = %v", p.Eta)

	rng := ecalveto.NewRand(*seed)
	log.Printf("Loading sig_file = %s", *sigFiles)
	sig, err := loadSample(v, *sigFiles, 1)
	if err != nil {
		return err
	}
	log.Printf("Loading bkg_file = %s", *bkgFiles)
	bkg, err := loadSample(v, *bkgFiles, 0)
	if err != nil {
		return err
	}
	for _, s := range []*ecalveto.Sample{sig, bkg} {
		s.Shuffle(rng)
		if err := s.Split(*trainFrac); err != nil {
			return err
		}
	}
	log.Printf("signal: %d train, %d test", len(sig.Train), len(sig.Test))
	log.Printf("background: %d train, %d test", len(bkg.Train), len(bkg.Test))

	set, err := ecalveto.Merge(sig, bkg, v.ModelSchema().Names())
	if err != nil {
		return err
	}

	booster := &ecalveto.XGBoostCLI{Binary: *xgbBinary}
	if *verbose {
		booster.Log = os.Stderr
	}
	res, err := booster.Train(ctx, set, p, dir, stem)
	if err != nil {
		return err
	}
	log.Printf("best iteration %d of %d", res.BestIteration, len(res.Scores))

	card := &ecalveto.ModelCard{
		Variant:       v.Name,
		Features:      v.ModelSchema().Names(),
		Params:        p,
		Seed:          *seed,
		TrainFrac:     *trainFrac,
		NTrain:        len(set.YTrain),
		NTest:         len(set.YTest),
		Rounds:        len(res.Scores),
		BestIteration: res.BestIteration,
	}
	cardPath := ecalveto.CardPath(res.ModelPath)
	if err := ecalveto.WriteModelCard(cardPath, card); err != nil {
		return err
	}

	card.TestAUC, err = testAUC(v, res.ModelPath, set)
	if err != nil {
		return err
	}
	log.Printf("test AUC = %.5f", card.TestAUC)
	if err := ecalveto.WriteModelCard(cardPath, card); err != nil {
		return err
	}

	scores, err := ecalveto.ImportanceFromFile(res.DumpPath, card.Features)
	if err != nil {
		return err
	}
	if err := ecalveto.PlotImportance(scores, filepath.Join(dir, stem+"_fimportance.png")); err != nil {
		return err
	}

	if *ledgerDB != "" {
		if err := record(v, dir, res, card); err != nil {
			return err
		}
	}
	log.Printf("Files saved in: %s", dir)
	return nil
}

func loadSample(v *ecalveto.Variant, patterns string, label float64) (*ecalveto.Sample, error) {
	files, err := ecalveto.ExpandInputs(ecalveto.SplitList(patterns))
	if err != nil {
		return nil, err
	}
	return ecalveto.LoadSample(files, v, *maxEvt, label)
}

func testAUC(v *ecalveto.Variant, modelPath string, set *ecalveto.TrainingSet) (float64, error) {
	model, err := ecalveto.LoadModel(modelPath, v)
	if err != nil {
		return 0, err
	}
	n, _ := set.XTest.Dims()
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = model.PredictSingle(set.XTest.RawRowView(i), model.NEstimators)
	}
	return ecalveto.AUC(scores, set.YTest)
}

func record(v *ecalveto.Variant, dir string, res *ecalveto.TrainResult, card *ecalveto.ModelCard) error {
	db, err := ledger.Open(*ledgerDB)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.RecordTraining(&ledger.Training{
		Variant:       v.Name,
		OutDir:        dir,
		ModelPath:     res.ModelPath,
		Seed:          card.Seed,
		Params:        card.Params,
		NTrain:        card.NTrain,
		NTest:         card.NTest,
		BestIteration: card.BestIteration,
		TestAUC:       card.TestAUC,
	})
}
